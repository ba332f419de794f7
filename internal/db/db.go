// Package db holds the shapes shared by valkey-backed repositories: hash
// payloads, FT index schemas and KNN queries. Relational state (documents,
// rules, audit) lives in package sqldb.
//
// Repositories declare the narrow slice of the store they need; package
// redis provides the implementation.
package db

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrKeyNotFound is returned by GET on a missing key.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexNotFound is returned when an FT index does not exist.
	ErrIndexNotFound = errors.New("db: index not found")
	// ErrIndexExists is returned by FT.CREATE on a name already taken.
	ErrIndexExists = errors.New("db: index already exists")
)

// Error attaches the failing command and its key (or index name) to a
// transport or server error.
type Error struct {
	Cmd string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Cmd + ": " + e.Err.Error()
	}
	return e.Cmd + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Hash is one HSET payload.
type Hash struct {
	Key    string
	Fields map[string]string
}

// VectorBlob encodes v as packed little-endian float32, the layout FLOAT32
// vector fields expect both in HSET and in KNN query parameters.
func VectorBlob(v []float32) string {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return string(buf)
}
