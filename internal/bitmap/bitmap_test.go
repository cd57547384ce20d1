package bitmap

import (
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n       int
		wantLen int
		words   int
	}{
		{-1, 0, 0},
		{0, 0, 0},
		{1, 1, 1},
		{64, 64, 1},
		{65, 65, 2},
		{200, 200, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			t.Parallel()

			b := New(tt.n)
			if b.Len() != tt.wantLen || len(b.data) != tt.words {
				t.Fatalf("New(%d): len=%d words=%d, want %d/%d", tt.n, b.Len(), len(b.data), tt.wantLen, tt.words)
			}
			if b.Count() != 0 {
				t.Fatalf("new bitmap not empty")
			}
		})
	}
}

func TestAddHasCount(t *testing.T) {
	t.Parallel()

	b := New(200)
	for _, i := range []int{-1, 0, 63, 64, 199, 200, 1000} {
		b.Add(i)
	}
	b.Add(63)

	tests := []struct {
		i    int
		want bool
	}{
		{-1, false},
		{0, true},
		{1, false},
		{63, true},
		{64, true},
		{199, true},
		{200, false},
		{1000, false},
	}
	for _, tt := range tests {
		if got := b.Has(tt.i); got != tt.want {
			t.Errorf("Has(%d)=%v, want %v", tt.i, got, tt.want)
		}
	}
	if got := b.Count(); got != 4 {
		t.Fatalf("Count=%d, want 4", got)
	}
}

func TestOr(t *testing.T) {
	t.Parallel()

	a := New(70)
	a.Add(1)
	a.Add(65)

	wide := New(128)
	wide.Add(1)
	wide.Add(2)
	wide.Add(100)

	a.Or(wide)
	if a.Count() != 3 || !a.Has(2) || a.Has(100) {
		t.Fatalf("after Or: count=%d has(2)=%v has(100)=%v", a.Count(), a.Has(2), a.Has(100))
	}

	a.Or(New(0))
	if a.Count() != 3 {
		t.Fatalf("Or with empty changed count to %d", a.Count())
	}
}
