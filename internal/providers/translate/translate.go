package translate

import "context"

// Translator converts one utterance between base language codes ("en",
// "es"). Implementations must honor ctx cancellation and deadlines; the
// relay calls with a bounded timeout and treats any error as a skipped
// translation, never as a session failure.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	Close() error
}
