package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsgError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      StoreWriteError,
			message:   "replace file a.go",
			cause:     stderrors.New("disk full"),
			wantParts: []string{"STORE_WRITE_ERROR", "replace file a.go", "disk full"},
		},
		{
			name:      "without cause",
			code:      EntityNotFound,
			message:   "no entity go:fn:foo:a_go:1-3",
			wantParts: []string{"ENTITY_NOT_FOUND", "go:fn:foo:a_go:1-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestIsAndCodeOf(t *testing.T) {
	inner := New(KeyFormatError, "bad key", nil)
	outer := New(StoreWriteError, "insert edges", inner)
	wrapped := fmt.Errorf("reindex a.go: %w", outer)

	if !Is(wrapped, StoreWriteError) {
		t.Error("Is(wrapped, StoreWriteError) = false, want true")
	}
	if !Is(wrapped, KeyFormatError) {
		t.Error("Is(wrapped, KeyFormatError) = false, want true")
	}
	if Is(wrapped, EntityNotFound) {
		t.Error("Is(wrapped, EntityNotFound) = true, want false")
	}
	if got := CodeOf(wrapped); got != StoreWriteError {
		t.Errorf("CodeOf() = %q, want %q", got, StoreWriteError)
	}
	if got := CodeOf(stderrors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if !stderrors.Is(wrapped, inner) {
		t.Error("Unwrap chain should reach the inner error")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	fixes := GetSuggestedFixes(EntityNotFound)
	if len(fixes) != 2 {
		t.Fatalf("len(fixes) = %d, want 2", len(fixes))
	}
	fixes[0].Command = "mutated"
	if ErrorActions[EntityNotFound][0].Command == "mutated" {
		t.Error("GetSuggestedFixes should return a copy")
	}
	if GetSuggestedFixes(ParseError) != nil {
		t.Error("ParseError has no registered fixes")
	}
}

func TestWithDetails(t *testing.T) {
	err := Newf(InvalidArgument, "hops must be >= 0, got %d", -1).WithDetails(map[string]int{"hops": -1})
	if err.Details == nil {
		t.Fatal("Details should be set")
	}
	if !strings.Contains(err.Message, "got -1") {
		t.Errorf("Message = %q", err.Message)
	}
}
