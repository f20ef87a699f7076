package batch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

func TestNewOK(t *testing.T) {
	r := NewOK("1")
	if r.ID() != "1" {
		t.Errorf("ID() = %q", r.ID())
	}
	if r.Status() != StatusOK {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusOK)
	}
	if r.Err() != nil || r.Cause() != "" {
		t.Errorf("Err() = %v, Cause() = %q, want empty", r.Err(), r.Cause())
	}
}

func TestNewError(t *testing.T) {
	err := fmt.Errorf("title is required: %w", domain.ErrInvalidDocument)
	r := NewError("2", err)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", r.Status(), StatusError)
	}
	if r.Cause() != domain.CauseInvalidDocument {
		t.Errorf("Cause() = %q", r.Cause())
	}
	if !errors.Is(r.Err(), domain.ErrIngestionItemFailed) || !errors.Is(r.Err(), domain.ErrInvalidDocument) {
		t.Errorf("Err() = %v, want both sentinels", r.Err())
	}
}

func TestNewReport(t *testing.T) {
	rep := NewReport("b-1", []Result{
		NewOK("1"),
		NewError("2", errors.New("disk full")),
		NewOK("3"),
	})
	if rep.Succeeded != 2 || rep.Failed != 1 {
		t.Errorf("Succeeded=%d Failed=%d", rep.Succeeded, rep.Failed)
	}
	if len(rep.Errors()) != 1 {
		t.Fatalf("Errors() = %v", rep.Errors())
	}
	var itemErr *domain.IngestionItemError
	if !errors.As(rep.Errors()[0], &itemErr) || itemErr.ID != "2" || itemErr.Cause != domain.CauseStorageFailed {
		t.Errorf("unexpected item error %#v", itemErr)
	}
}
