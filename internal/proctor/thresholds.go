package proctor

import (
	"fmt"
	"sort"
)

// thresholds tracks one-shot countdown warnings. Each threshold latches at most
// once per session.
type thresholds struct {
	values  []int
	latched map[int]bool
}

func newThresholds(values []int) *thresholds {
	sorted := append([]int(nil), values...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	return &thresholds{values: sorted, latched: make(map[int]bool, len(sorted))}
}

// arm latches, without announcing, every threshold already passed at activation.
func (t *thresholds) arm(remaining int) {
	for _, v := range t.values {
		if v > remaining {
			t.latched[v] = true
		}
	}
}

// cross latches every unlatched threshold at or above remaining and returns the
// most urgent of them.
func (t *thresholds) cross(remaining int) (int, bool) {
	crossed, ok := 0, false
	for _, v := range t.values {
		if t.latched[v] || remaining > v {
			continue
		}
		t.latched[v] = true
		crossed, ok = v, true
	}
	return crossed, ok
}

func thresholdMessage(seconds int) string {
	if seconds%60 == 0 {
		minutes := seconds / 60
		if minutes == 1 {
			return "1 minute remaining"
		}
		return fmt.Sprintf("%d minutes remaining", minutes)
	}
	return fmt.Sprintf("%d seconds remaining", seconds)
}
