package store

import "testing"

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 {
		t.Fatal("expected 1 for true")
	}
	if boolToInt(false) != 0 {
		t.Fatal("expected 0 for false")
	}
}
