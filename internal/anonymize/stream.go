package anonymize

import "strings"

// maxHold bounds how many trailing bytes Feed may withhold while deciding
// whether they begin a placeholder split across chunks: "<PII_" plus a
// digit run and ">".
const maxHold = 16

// StreamDeanonymizer restores placeholders in streamed output where a
// token may arrive split across chunk boundaries. Feed returns text that
// is safe to emit; a trailing fragment that could still grow into a
// placeholder is carried into the next call. Not safe for concurrent use.
type StreamDeanonymizer struct {
	mapping Mapping
	carry   string
}

func NewStreamDeanonymizer(mapping Mapping) *StreamDeanonymizer {
	return &StreamDeanonymizer{mapping: mapping}
}

// Feed appends chunk to the carried fragment, restores every complete
// placeholder, and returns the emittable prefix.
func (d *StreamDeanonymizer) Feed(chunk string) string {
	if d == nil {
		return chunk
	}
	buf := d.carry + chunk
	d.carry = ""
	if buf == "" {
		return ""
	}

	hold := ambiguousSuffixLen(buf)
	safe := buf[:len(buf)-hold]
	d.carry = buf[len(buf)-hold:]
	return Deanonymize(safe, d.mapping)
}

// Flush returns whatever Feed was still holding back. Call once after the
// final chunk.
func (d *StreamDeanonymizer) Flush() string {
	if d == nil {
		return ""
	}
	rest := Deanonymize(d.carry, d.mapping)
	d.carry = ""
	return rest
}

// ambiguousSuffixLen reports how many trailing bytes of s could be the
// beginning of a placeholder token whose remainder has not arrived yet.
func ambiguousSuffixLen(s string) int {
	limit := maxHold
	if len(s) < limit {
		limit = len(s)
	}
	for n := limit; n > 0; n-- {
		if isPlaceholderPrefix(s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

func isPlaceholderPrefix(s string) bool {
	const full = "<PII_"
	rest := s
	if strings.HasPrefix(full, rest) {
		return true
	}
	rest = strings.TrimPrefix(rest, "<")
	const bare = "PII_"
	if strings.HasPrefix(bare, rest) {
		return true
	}
	if !strings.HasPrefix(rest, bare) {
		return false
	}
	// "PII_" followed by digits only; anything else would already have
	// terminated the token.
	for _, r := range rest[len(bare):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
