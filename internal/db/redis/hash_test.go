package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/docreview/internal/db"
)

func TestHSet_Pipelined(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(1)),
			mock.Result(mock.RedisInt64(1)),
		})

	err := s.HSet(context.Background(),
		db.Hash{Key: "fp:1", Fields: map[string]string{"doc_id": "1"}},
		db.Hash{Key: "fp:2", Fields: map[string]string{"doc_id": "2"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.HSet(context.Background()); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestHSet_ErrorNamesKey(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(1)),
			mock.ErrorResult(context.DeadlineExceeded),
		})

	err := s.HSet(context.Background(),
		db.Hash{Key: "fp:1", Fields: map[string]string{"doc_id": "1"}},
		db.Hash{Key: "fp:2", Fields: map[string]string{"doc_id": "2"}},
	)
	if e := asDBError(t, err); e.Cmd != "HSET" || e.Key != "fp:2" {
		t.Errorf("error = %+v", e)
	}
}

func TestDel_Chunks(t *testing.T) {
	s, c := newMockStore(t)
	keys := make([]string, unlinkChunk+3)
	for i := range keys {
		keys[i] = "k" + strconv.Itoa(i)
	}
	var sizes []int
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "UNLINK" {
				return false
			}
			sizes = append(sizes, len(cmd)-1)
			return true
		})).
		Return(mock.Result(mock.RedisInt64(1))).
		Times(2)

	if err := s.Del(context.Background(), keys...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sizes) != 2 || sizes[0] != unlinkChunk || sizes[1] != 3 {
		t.Errorf("chunk sizes = %v", sizes)
	}
	if err := s.Del(context.Background()); err != nil {
		t.Fatalf("no keys: %v", err)
	}
}

func TestDeletePrefix_WalksAllPages(t *testing.T) {
	s, c := newMockStore(t)
	var pattern string
	page := 0
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			if cmd[0] != "SCAN" {
				return false
			}
			pattern = cmd[3]
			return true
		})).
		DoAndReturn(func(context.Context, rueidis.Completed) rueidis.RedisResult {
			page++
			if page == 1 {
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42),
					mock.RedisArray(mock.RedisString("fp:1"), mock.RedisString("fp:2")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("fp:3")),
			))
		}).Times(2)
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "UNLINK" })).
		Return(mock.Result(mock.RedisInt64(1))).
		Times(2)

	n, err := s.DeletePrefix(context.Background(), "fp:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("removed = %d, want 3", n)
	}
	if pattern != "fp:*" {
		t.Errorf("pattern = %q", pattern)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("got %q", got)
	}
}
