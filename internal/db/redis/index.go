package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/docreview/internal/db"
)

// CreateIndex issues FT.CREATE for schema. A taken name yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, schema *db.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	cmd := s.client.B().Arbitrary("FT.CREATE").Args(createArgs(schema)...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if serverErr(err, "already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Cmd: "FT.CREATE", Key: schema.Index, Err: err}
	}
	return nil
}

// DropIndex issues FT.DROPINDEX. Indexed hashes stay in place.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	if err := s.client.Do(ctx, s.client.B().Arbitrary("FT.DROPINDEX").Args(name).Build()).Error(); err != nil {
		if serverErr(err, "unknown index name") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Cmd: "FT.DROPINDEX", Key: name, Err: err}
	}
	return nil
}

// IndexExists probes with FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.client.Do(ctx, s.client.B().Arbitrary("FT.INFO").Args(name).Build()).Error()
	switch {
	case err == nil:
		return true, nil
	case serverErr(err, "unknown index name"):
		return false, nil
	default:
		return false, &db.Error{Cmd: "FT.INFO", Key: name, Err: err}
	}
}

func createArgs(s *db.Schema) []string {
	args := []string{s.Index, "ON", "HASH"}
	if s.Prefix != "" {
		args = append(args, "PREFIX", "1", s.Prefix)
	}
	args = append(args, "SCHEMA")
	for _, f := range s.Fields {
		switch f.Kind {
		case db.FieldTag:
			args = append(args, f.Name, "TAG")
		case db.FieldNumeric:
			args = append(args, f.Name, "NUMERIC")
		case db.FieldVector:
			args = append(args, f.Name, "VECTOR", "FLAT", "6",
				"TYPE", "FLOAT32", "DIM", strconv.Itoa(f.Dim), "DISTANCE_METRIC", "COSINE")
		}
	}
	return args
}
