package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain", errors.New("boom"), KindInfrastructure},
		{"not found", fmt.Errorf("update: %w", ErrNotFound), KindNotFound},
		{"validation", &ValidationError{Field: "amount", Message: "is required"}, KindValidation},
		{"wrapped validation", fmt.Errorf("create: %w", &ValidationError{Field: "date"}), KindValidation},
		{"explicit conflict", E(KindConflict, "insert", errors.New("duplicate")), KindConflict},
		{"explicit overrides inner", E(KindValidation, "import", ErrNotFound), KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestE(t *testing.T) {
	if E(KindValidation, "op", nil) != nil {
		t.Fatalf("E with nil error must be nil")
	}
	err := E(KindNotFound, "update expense", ErrNotFound)
	if err.Error() != "update expense: expense not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("E must unwrap")
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, size, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 5, 5},
		{3, 0, 0},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d) = %d, want %d", tc.total, tc.size, got, tc.want)
		}
	}
	if (Page{Number: 3, Size: 10}).Offset() != 20 {
		t.Fatalf("unexpected offset")
	}
}
