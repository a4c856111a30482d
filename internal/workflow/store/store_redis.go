package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bskt/internal/workflow"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

const (
	keyPrefix     = "bskt:workflow:"
	pendingMarker = "pending"
)

// releaseScript deletes a key only while it still holds the pending marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore keeps claims and results in Redis. A claim is a SET NX of the
// pending marker that expires after claimTTL, so a crashed run frees its id;
// completed results are kept for resultTTL.
type RedisStore struct {
	client    redis.UniversalClient
	claimTTL  time.Duration
	resultTTL time.Duration
}

func NewRedis(client redis.UniversalClient, claimTTL, resultTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, claimTTL: claimTTL, resultTTL: resultTTL}
}

func key(txID id.TransactionID) string {
	return keyPrefix + txID.String()
}

func (s *RedisStore) Claim(ctx context.Context, txID id.TransactionID) (*workflow.Result, error) {
	ok, err := s.client.SetNX(ctx, key(txID), pendingMarker, s.claimTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", txID, err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, key(txID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or released between SET NX and GET; try once more.
		return s.claimAgain(ctx, txID)
	case err != nil:
		return nil, fmt.Errorf("read claim %s: %w", txID, err)
	case raw == pendingMarker:
		return nil, sentinel.ErrAlreadyClaimed
	}

	var res workflow.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode stored result %s: %w", txID, err)
	}
	return &res, nil
}

func (s *RedisStore) claimAgain(ctx context.Context, txID id.TransactionID) (*workflow.Result, error) {
	ok, err := s.client.SetNX(ctx, key(txID), pendingMarker, s.claimTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", txID, err)
	}
	if !ok {
		return nil, sentinel.ErrAlreadyClaimed
	}
	return nil, nil
}

func (s *RedisStore) Complete(ctx context.Context, txID id.TransactionID, res *workflow.Result) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", txID, err)
	}
	if err := s.client.Set(ctx, key(txID), raw, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", txID, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, txID id.TransactionID) error {
	if err := releaseScript.Run(ctx, s.client, []string{key(txID)}, pendingMarker).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", txID, err)
	}
	return nil
}
