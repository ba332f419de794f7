package db

import (
	"errors"
	"fmt"
)

// FieldKind is the FT schema type of an indexed hash field.
type FieldKind int

const (
	FieldTag FieldKind = iota + 1
	FieldNumeric
	// FieldVector is always FLAT, FLOAT32, COSINE. Fingerprint sets are
	// small enough for exact search.
	FieldVector
)

// Field is one entry of an FT schema. Dim applies to vectors only.
type Field struct {
	Name string
	Kind FieldKind
	Dim  int
}

// Schema describes an FT index over HASH keys sharing Prefix.
type Schema struct {
	Index  string
	Prefix string
	Fields []Field
}

// Validate rejects schemas FT.CREATE would refuse or misparse.
func (s *Schema) Validate() error {
	if !ValidIdentifier(s.Index) {
		return fmt.Errorf("invalid index name %q", s.Index)
	}
	if len(s.Fields) == 0 {
		return errors.New("schema has no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if !ValidIdentifier(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("field %q declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Kind {
		case FieldTag, FieldNumeric:
		case FieldVector:
			if f.Dim <= 0 {
				return fmt.Errorf("vector field %q needs a positive dimension", f.Name)
			}
		default:
			return fmt.Errorf("field %q has unknown kind %d", f.Name, f.Kind)
		}
	}
	return nil
}

// ValidIdentifier reports whether s is non-empty and made of [a-zA-Z0-9_:-].
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}
