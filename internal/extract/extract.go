// Package extract parses summarizer replies and scores them against the
// original query.
package extract

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// ErrMalformedReply means the reply did not end with a parseable
// "Keywords: ..." paragraph.
var ErrMalformedReply = errors.New("reply is missing the keywords paragraph")

// Summary is a parsed reply. Narrative is everything before the keywords
// paragraph; Keywords are deduplicated and sorted longest first.
type Summary struct {
	Narrative string
	Keywords  []string
}

// ParseReply splits a reply into paragraphs on blank lines and reads the
// keyword list from the final paragraph, which must look like
// "Keywords: a, b, c".
func ParseReply(reply string) (*Summary, error) {
	paragraphs := strings.Split(reply, "\n\n")
	if len(paragraphs) < 2 {
		return nil, ErrMalformedReply
	}

	trailer := paragraphs[len(paragraphs)-1]
	sep := strings.Index(trailer, ": ")
	if sep < 0 {
		return nil, ErrMalformedReply
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, kw := range strings.Split(trailer[sep+2:], ", ") {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 {
		return nil, ErrMalformedReply
	}

	SortKeywords(keywords)

	return &Summary{
		Narrative: strings.Join(paragraphs[:len(paragraphs)-1], "\n\n"),
		Keywords:  keywords,
	}, nil
}

// SortKeywords orders keywords by descending length, then lexically. This is
// display order only; scoring treats keywords as a set.
func SortKeywords(keywords []string) {
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})
}

// Score reports how well the narrative echoes the query, as the fraction of
// keywords that appear verbatim in both the query and the narrative. Words
// are whitespace-separated literal tokens, so "Paris." does not match
// "Paris". The result is rounded to three decimals; no keywords means 0.
func Score(query, narrative string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	queryWords := wordSet(query)
	narrativeWords := wordSet(narrative)

	matched := 0
	for _, kw := range keywords {
		if queryWords[kw] && narrativeWords[kw] {
			matched++
		}
	}
	return round3(float64(matched) / float64(len(keywords)))
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
