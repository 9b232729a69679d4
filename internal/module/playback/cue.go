package playback

import (
	"strconv"
	"strings"
)

// Cue is a half-open [Start, End) time range in seconds, derived from one
// timing line of a caption document.
type Cue struct {
	Start float64
	End   float64
}

// Contains reports whether t falls inside the cue's half-open interval.
func (c Cue) Contains(t float64) bool {
	return t >= c.Start && t < c.End
}

// ParseCaptions extracts cues from a caption document. Timing lines have the
// form "start --> end" with timestamps as H:MM:SS.mmm or MM:SS.mmm. Cues are
// returned in document order; malformed timing lines are skipped.
func ParseCaptions(doc string) []Cue {
	var cues []Cue
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		rest := strings.Fields(strings.TrimSpace(parts[1]))
		if len(rest) == 0 {
			continue
		}
		start, ok1 := parseTimestamp(strings.TrimSpace(parts[0]))
		end, ok2 := parseTimestamp(rest[0])
		if !ok1 || !ok2 {
			continue
		}

		cues = append(cues, Cue{Start: start, End: end})
	}
	return cues
}

// parseTimestamp converts H:MM:SS.mmm or MM:SS.mmm to seconds.
func parseTimestamp(ts string) (float64, bool) {
	fields := strings.Split(ts, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, false
	}

	var total float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}
