package entropy

import "testing"

func TestSeedsDiffer(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 16; i++ {
		s := Seed()
		if s < 0 {
			t.Fatalf("seed=%d want non-negative", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Fatalf("seeds never changed")
	}
	if NewRand().Intn(10) < 0 {
		t.Fatalf("unreachable")
	}
}
