package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsUniqueAndPrefixed(t *testing.T) {
	seenID := map[int]bool{}
	seenName := map[string]bool{}
	for _, def := range CounterDefs {
		if seenID[int(def.ID)] {
			t.Fatalf("duplicate metric id %d", def.ID)
		}
		if seenName[def.Name] {
			t.Fatalf("duplicate metric name %s", def.Name)
		}
		seenID[int(def.ID)] = true
		seenName[def.Name] = true
		if !strings.HasPrefix(def.Name, "nickauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %s", def.Name)
		}
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatalf("expected one suffix per bucket including +Inf")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
