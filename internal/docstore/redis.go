package docstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each schema's documents in one hash keyed by document
// id. Filtering happens client side, like the hosted store's coarse index.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("docstore: redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) key(schema string) string {
	sum := sha1.Sum([]byte(schema))
	return s.prefix + ":docs:" + hex.EncodeToString(sum[:])
}

// Create stores doc under schema.
func (s *RedisStore) Create(ctx context.Context, schema string, doc any) (string, error) {
	id := NewID()
	data, err := Stamp(doc, id, s.now())
	if err != nil {
		return "", err
	}
	if err := s.rdb.HSet(ctx, s.key(schema), id, string(data)).Err(); err != nil {
		return "", fmt.Errorf("docstore: redis hset: %w", err)
	}
	return id, nil
}

// Query returns documents under schema matching filter.
func (s *RedisStore) Query(ctx context.Context, schema string, filter Filter, opts QueryOptions) ([]Record, error) {
	all, err := s.rdb.HGetAll(ctx, s.key(schema)).Result()
	if err != nil {
		return nil, fmt.Errorf("docstore: redis hgetall: %w", err)
	}
	records := make([]Record, 0, len(all))
	for _, v := range all {
		rec, err := ParseRecord(schema, []byte(v))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return Apply(records, filter, opts), nil
}
