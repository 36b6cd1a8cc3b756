package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := NewAt(base)
	second := NewAt(base.Add(time.Millisecond))
	if !(first < second) {
		t.Fatalf("expected %s < %s", first, second)
	}
	if !Valid(first) || !Valid(New()) {
		t.Fatal("generated ids must be valid")
	}
	if Valid("not-an-id") || Valid("") {
		t.Fatal("garbage must not validate")
	}
}
