package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docreview/internal/db"
)

// Get reads a string value. A missing key yields db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Cmd: "GET", Key: key, Err: err}
	}
	return v, nil
}

// SetWithTTL writes value with an expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Cmd: "SET", Key: key, Err: err}
	}
	return nil
}

// IncrWithTTL adds delta to a counter and, in the same pipeline, arms ttl
// unless the key already expires (EXPIRE NX). Repeat increments never push
// the expiry forward. It returns the counter after the increment.
func (s *Store) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	res := s.client.DoMulti(ctx,
		s.client.B().Incrby().Key(key).Increment(delta).Build(),
		s.client.B().Expire().Key(key).Seconds(int64(ttl/time.Second)).Nx().Build(),
	)
	n, err := res[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Cmd: "INCRBY", Key: key, Err: err}
	}
	if err := res[1].Error(); err != nil {
		return n, &db.Error{Cmd: "EXPIRE", Key: key, Err: err}
	}
	return n, nil
}
