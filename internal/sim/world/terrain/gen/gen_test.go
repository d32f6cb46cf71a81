package gen

import "testing"

func TestHashIsStable(t *testing.T) {
	if Hash2(1, 3, -4) != Hash2(1, 3, -4) || Hash3(1, 3, 5, -4) != Hash3(1, 3, 5, -4) {
		t.Fatalf("hash not deterministic")
	}
	if Hash2(1, 3, -4) == Hash2(2, 3, -4) {
		t.Fatalf("seed ignored")
	}
	if Hash3(1, 3, 5, -4) == Hash3(1, 3, 6, -4) {
		t.Fatalf("y ignored")
	}
	// Coordinates wrap at 32 bits.
	if Hash2(7, 1<<32+5, 9) != Hash2(7, 5, 9) {
		t.Fatalf("x not truncated")
	}
}
