package clisession

import (
	"testing"

	"github.com/clisession/clisession/internal/options"
)

func TestOpenRejectsInvalidOptions(t *testing.T) {
	if _, err := Open(options.Raw{"bogus": true}); err == nil {
		t.Fatal("expected error for unknown option")
	}
}

func TestOpenAndStopWithoutQuerying(t *testing.T) {
	s, err := Open(options.Raw{"model": "sonnet"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := s.Health(); h.State == "" {
		t.Fatalf("expected a non-empty health state before first query, got %+v", h)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error stopping unstarted session: %v", err)
	}
}
