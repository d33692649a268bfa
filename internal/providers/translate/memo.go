package translate

import (
	"context"
	"strings"
	"sync"
)

// DefaultMemoEntries bounds the in-process translation cache. When the map
// grows past the bound it is cleared whole rather than evicted entry by
// entry; utterances are short-lived and repeats across a process lifetime
// are rare, so the simplicity wins over LRU bookkeeping. Intentional.
const DefaultMemoEntries = 2000

type memoKey struct {
	source string
	target string
	text   string
}

// Memo caches successful translations in front of another Translator.
// Failures are never cached: a later retry for the same text goes back to
// the backend.
type Memo struct {
	next Translator
	max  int

	mu      sync.Mutex
	entries map[memoKey]string
}

func NewMemo(next Translator) *Memo {
	return NewMemoSize(next, DefaultMemoEntries)
}

func NewMemoSize(next Translator, maxEntries int) *Memo {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoEntries
	}
	return &Memo{
		next:    next,
		max:     maxEntries,
		entries: make(map[memoKey]string),
	}
}

func (m *Memo) Close() error { return m.next.Close() }

func (m *Memo) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	key := memoKey{source: sourceLang, target: targetLang, text: strings.TrimSpace(text)}

	m.mu.Lock()
	if hit, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return hit, nil
	}
	m.mu.Unlock()

	out, err := m.next.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if len(m.entries) >= m.max {
		m.entries = make(map[memoKey]string)
	}
	m.entries[key] = out
	m.mu.Unlock()

	return out, nil
}

// Len reports the current entry count.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Translator = (*Memo)(nil)
