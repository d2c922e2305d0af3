package poller

// newLines returns the lines of cur not yet seen in prev.
//
// While the server log is shorter than the tail window, cur extends prev
// and the difference is by index. Once the window is saturated the head
// of the window moves, so the shift is found as the longest suffix of
// prev that is a prefix of cur. With no overlap every line is new.
//
// A tail never shrinks while the server log grows, so a shorter tail that
// does not extend prev means the log was restarted: every line is new.
// Runs of identical lines in a saturated window stay ambiguous; the longest
// overlap is taken, which may miss lines that repeat the previous tail.
func newLines(prev, cur []string) []string {
	if len(cur) >= len(prev) && hasPrefix(cur, prev) {
		return cur[len(prev):]
	}
	if len(cur) < len(prev) {
		return cur
	}
	for k := min(len(prev), len(cur)); k > 0; k-- {
		if equal(prev[len(prev)-k:], cur[:k]) {
			return cur[k:]
		}
	}
	return cur
}

func hasPrefix(s, prefix []string) bool {
	return equal(s[:len(prefix)], prefix)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
