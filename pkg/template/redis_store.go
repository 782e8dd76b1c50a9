package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "mango:template:"

// RedisStore persists template definitions as JSON strings, one key per
// label.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRedisStore creates a store. An empty prefix uses "mango:template:".
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Save writes d, replacing any previous definition for its label.
func (s *RedisStore) Save(ctx context.Context, d Definition) error {
	if d.Label == "" {
		return errors.New("template definition has no label")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", d.Label, err)
	}
	return s.rdb.Set(ctx, s.prefix+d.Label, raw, 0).Err()
}

// Load implements Source.
func (s *RedisStore) Load(ctx context.Context, label string) (*Definition, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+label).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", label, err)
	}
	var d Definition
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", label, err)
	}
	return &d, nil
}

// Delete removes the definition for label.
func (s *RedisStore) Delete(ctx context.Context, label string) error {
	return s.rdb.Del(ctx, s.prefix+label).Err()
}

// Labels lists every stored label in sorted order.
func (s *RedisStore) Labels(ctx context.Context) ([]string, error) {
	var labels []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		labels = append(labels, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	sort.Strings(labels)
	return labels, nil
}
