package batch

import (
	"context"
	"errors"
	"testing"
)

func TestNewOK(t *testing.T) {
	r := NewOK("doc-1")
	if r.ID() != "doc-1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}
}

func TestNewError(t *testing.T) {
	err := errors.New("something failed")
	r := NewError("doc-2", err)
	if r.ID() != "doc-2" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if !errors.Is(r.Err(), err) {
		t.Errorf("Err() = %v, want %v", r.Err(), err)
	}
}

func TestNewSkipped(t *testing.T) {
	r := NewSkipped("doc-3", context.Canceled)
	if r.Status() != StatusSkipped {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusSkipped)
	}
	if !errors.Is(r.Err(), context.Canceled) {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Result{
		NewOK("a"), NewOK("b"),
		NewError("c", errors.New("boom")),
		NewSkipped("d", context.Canceled),
	})
	if s.OK != 2 || s.Failed != 1 || s.Skipped != 1 {
		t.Errorf("Summarize = %+v", s)
	}
}
