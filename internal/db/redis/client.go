// Package redis implements the valkey side of package db on rueidis. The
// FT commands target valkey-search and the Redis 8 query engine.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docreview/internal/db"
)

// Config holds connection parameters.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	ClientName string
}

// Store wraps a rueidis client.
type Store struct {
	client rueidis.Client
}

// NewStore dials the configured addresses. Client-side caching is off and
// the protocol is pinned to RESP2, the reply shape parseKNNResult expects.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("valkey: no addresses configured")
	}
	name := cfg.ClientName
	if name == "" {
		name = "docreview"
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   name,
		DisableCache: true,
		AlwaysRESP2:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey: %w", err)
	}
	return &Store{client: client}, nil
}

func wrap(c rueidis.Client) *Store { return &Store{client: c} }

// Ping satisfies the health probe contract.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return &db.Error{Cmd: "PING", Err: err}
	}
	return nil
}

// Close releases pooled connections.
func (s *Store) Close() { s.client.Close() }

// WaitForReady pings with doubling pauses (100ms up to 2s) until the server
// answers or timeout elapses.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pause := 100 * time.Millisecond
	for {
		err := s.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("valkey not ready after %s: %w (last ping: %w)", timeout, ctx.Err(), err)
		case <-time.After(pause):
		}
		pause = min(pause*2, 2*time.Second)
	}
}

// serverErr reports whether err is a server reply whose text contains msg.
func serverErr(err error, msg string) bool {
	re, ok := rueidis.IsRedisErr(err)
	return ok && strings.Contains(strings.ToLower(re.Error()), msg)
}
