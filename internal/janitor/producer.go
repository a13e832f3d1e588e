package janitor

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Producer appends orphaned keys to the cleanup stream. It satisfies the
// pipeline's orphan sink interface.
type Producer struct {
	rc     redis.UniversalClient
	stream string
	maxLen int64
}

func NewProducer(rc redis.UniversalClient, stream string, maxLen int64) *Producer {
	return &Producer{rc: rc, stream: stream, maxLen: maxLen}
}

// EnqueueOrphan persists the cleanup request for background processing.
func (p *Producer) EnqueueOrphan(ctx context.Context, key string) error {
	raw, _ := json.Marshal(OrphanJob{Key: key})
	return p.rc.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]any{
			"payload": string(raw),
			"attempt": 0,
		},
	}).Err()
}
