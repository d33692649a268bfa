package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linguacall/linguacall/internal/relay"
	"github.com/linguacall/linguacall/internal/utils"
)

const (
	captionHistoryMax = 200
	captionHistoryTTL = 24 * time.Hour
)

// CaptionHistoryService keeps the most recent final captions of each call
// in a capped Redis list so late joiners can backfill. Implements
// relay.CaptionSink.
type CaptionHistoryService interface {
	Append(ctx context.Context, callID string, rec relay.CaptionRecord) error
	Recent(ctx context.Context, callID string, limit int) ([]relay.CaptionRecord, error)
}

type captionHistory struct {
	rdb *redis.Client
}

func NewCaptionHistoryService(rdb *redis.Client) CaptionHistoryService {
	return &captionHistory{rdb: rdb}
}

func captionKey(callID string) string { return "call:" + callID + ":captions" }

func (s *captionHistory) Append(ctx context.Context, callID string, rec relay.CaptionRecord) error {
	const op = "CaptionHistoryService.Append"

	b, err := json.Marshal(rec)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode caption", err)
	}

	key := captionKey(callID)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, captionHistoryMax-1)
	pipe.Expire(ctx, key, captionHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to store caption", err)
	}
	return nil
}

func (s *captionHistory) Recent(ctx context.Context, callID string, limit int) ([]relay.CaptionRecord, error) {
	const op = "CaptionHistoryService.Recent"

	if limit <= 0 || limit > captionHistoryMax {
		limit = captionHistoryMax
	}
	raw, err := s.rdb.LRange(ctx, captionKey(callID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read captions", err)
	}

	out := make([]relay.CaptionRecord, 0, len(raw))
	for _, item := range raw {
		var rec relay.CaptionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue // skip corrupt entries
		}
		out = append(out, rec)
	}
	return out, nil
}
