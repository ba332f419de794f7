package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docreview/internal/db"
)

// unlinkChunk bounds the key count of a single UNLINK.
const unlinkChunk = 500

// HSet writes every hash in one pipelined round-trip.
func (s *Store) HSet(ctx context.Context, hashes ...db.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	cmds := make(rueidis.Commands, 0, len(hashes))
	for _, h := range hashes {
		fv := s.client.B().Hset().Key(h.Key).FieldValue()
		for f, v := range h.Fields {
			fv = fv.FieldValue(f, v)
		}
		cmds = append(cmds, fv.Build())
	}
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &db.Error{Cmd: "HSET", Key: hashes[i].Key, Err: err}
		}
	}
	return nil
}

// Del removes keys without blocking the server. Missing keys are ignored.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += unlinkChunk {
		chunk := keys[start:min(start+unlinkChunk, len(keys))]
		if err := s.client.Do(ctx, s.client.B().Unlink().Key(chunk...).Build()).Error(); err != nil {
			return &db.Error{Cmd: "UNLINK", Key: chunk[0], Err: err}
		}
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN and unlinks every key starting
// with prefix, page by page. It returns the number of keys removed.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(escapeGlob(prefix) + "*").Count(unlinkChunk).Build()
		page, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return removed, &db.Error{Cmd: "SCAN", Key: prefix, Err: err}
		}
		if len(page.Elements) > 0 {
			if err := s.Del(ctx, page.Elements...); err != nil {
				return removed, fmt.Errorf("delete prefix %s: %w", prefix, err)
			}
			removed += len(page.Elements)
		}
		if page.Cursor == 0 {
			return removed, nil
		}
		cursor = page.Cursor
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
