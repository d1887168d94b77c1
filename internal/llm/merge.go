package llm

import "strings"

// MergeStreamingChunk combines accumulated stream text with the next delta.
// Some vendors replay the accumulated text and extend it instead of sending a
// pure delta; when one side is a prefix of the other, the longer string wins.
// Otherwise the delta is appended. Identical repeats are absorbed:
// merge(s, s) == s.
func MergeStreamingChunk(previous, next string) string {
	if next == "" {
		return previous
	}
	if previous == "" {
		return next
	}
	if strings.HasPrefix(next, previous) {
		return next
	}
	if strings.HasPrefix(previous, next) {
		return previous
	}
	return previous + next
}

// CleanVisible produces the client-visible form of merged stream text:
// horizontal whitespace runs collapse to single spaces and runs of blank
// lines collapse to one. The raw merged text is kept server-side unchanged.
func CleanVisible(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
