package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestSetDisabledIgnoresWrites(t *testing.T) {
	s := New(4, false, true)
	s.Inc(1)
	s.Observe(1, time.Millisecond)
	if s.Value(1) != 0 {
		t.Fatal("disabled set must not count")
	}
	if s.Buckets(1)[0] != 0 {
		t.Fatal("disabled set must not observe")
	}
}

func TestSetOutOfRangeIsIgnored(t *testing.T) {
	s := New(2, true, true)
	s.Inc(-1)
	s.Inc(2)
	s.Observe(5, time.Second)
	if s.Value(2) != 0 {
		t.Fatal("out of range read must be zero")
	}
	var nilSet *Set
	nilSet.Inc(0)
	if nilSet.Value(0) != 0 || nilSet.Enabled() {
		t.Fatal("nil set must be inert")
	}
}

func TestSetConcurrentIncrement(t *testing.T) {
	s := New(1, true, false)
	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				s.Inc(0)
			}
		}()
	}
	wg.Wait()
	if got := s.Value(0); got != goroutines*perG {
		t.Fatalf("expected %d, got %d", goroutines*perG, got)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{2 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := BucketIndex(tc.d); got != tc.want {
			t.Fatalf("BucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestLatencyRequiresEnabled(t *testing.T) {
	s := New(1, true, false)
	s.Observe(0, time.Millisecond)
	if s.Buckets(0)[0] != 0 {
		t.Fatal("latency disabled set must not observe")
	}
}
