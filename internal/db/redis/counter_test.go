package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/docreview/internal/db"
)

func TestGet(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("GET", "k")).Return(mock.Result(mock.RedisString("v")))

	v, err := s.Get(context.Background(), "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("GET", "k")).Return(mock.Result(mock.RedisNil()))

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_NetworkErrorIsNotNotFound(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("GET", "k")).Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := s.Get(context.Background(), "k")
	if errors.Is(err, db.ErrKeyNotFound) {
		t.Fatal("network error reported as missing key")
	}
	if e := asDBError(t, err); e.Key != "k" {
		t.Errorf("key = %q", e.Key)
	}
}

func TestSetWithTTL(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "k", "v", "EX", "60")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := s.SetWithTTL(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncrWithTTL(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(15)),
			mock.Result(mock.RedisInt64(0)),
		})

	n, err := s.IncrWithTTL(context.Background(), "budget:daily", 5, 48*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 15 {
		t.Errorf("counter = %d, want 15", n)
	}
}

func TestIncrWithTTL_ExpireFailure(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(5)),
			mock.ErrorResult(errors.New("READONLY")),
		})

	n, err := s.IncrWithTTL(context.Background(), "k", 5, time.Hour)
	if e := asDBError(t, err); e.Cmd != "EXPIRE" {
		t.Errorf("cmd = %q", e.Cmd)
	}
	if n != 5 {
		t.Errorf("counter = %d, want 5", n)
	}
}
