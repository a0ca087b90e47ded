package extractor

import "strings"

const (
	noMemorySentinel = "NO_MEMORY"
	memoryMarker     = "MEMORY:"
)

// Result is the outcome of parsing one extraction response.
type Result struct {
	Facts []string
	// Ambiguous is set when the response carries both the NO_MEMORY sentinel and
	// MEMORY: markers. The sentinel wins.
	Ambiguous bool
}

// Parse reads the MEMORY:/NO_MEMORY text protocol.
func Parse(response string) Result {
	if strings.Contains(response, noMemorySentinel) {
		// NO_MEMORY itself contains "MEMORY", so look for the marker with the sentinel removed.
		rest := strings.ReplaceAll(response, noMemorySentinel, "")
		return Result{Ambiguous: strings.Contains(rest, memoryMarker)}
	}

	var facts []string
	for _, fact := range splitMarkers(response) {
		if f := strings.TrimSpace(fact); f != "" {
			facts = append(facts, f)
		}
	}
	return Result{Facts: facts}
}

// splitMarkers returns the text following each MEMORY: marker up to the next one.
func splitMarkers(response string) []string {
	idx := strings.Index(response, memoryMarker)
	if idx < 0 {
		return nil
	}
	var out []string
	rest := response[idx+len(memoryMarker):]
	for {
		next := strings.Index(rest, memoryMarker)
		if next < 0 {
			out = append(out, rest)
			return out
		}
		out = append(out, rest[:next])
		rest = rest[next+len(memoryMarker):]
	}
}
