package extract

import (
	"errors"
	"testing"
)

func TestParseReply(t *testing.T) {
	reply := "Summary: The text describes a trip to Paris.\n\nKeywords: Paris, trip, text"

	sum, err := ParseReply(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sum.Narrative != "Summary: The text describes a trip to Paris." {
		t.Fatalf("narrative = %q", sum.Narrative)
	}
	want := []string{"Paris", "text", "trip"}
	if len(sum.Keywords) != len(want) {
		t.Fatalf("keywords = %v", sum.Keywords)
	}
	for i, kw := range want {
		if sum.Keywords[i] != kw {
			t.Fatalf("keywords = %v, want %v", sum.Keywords, want)
		}
	}
}

func TestParseReplyMultiParagraphNarrative(t *testing.T) {
	reply := "First paragraph.\n\nSecond paragraph.\n\nKeywords: alpha, beta"

	sum, err := ParseReply(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sum.Narrative != "First paragraph.\n\nSecond paragraph." {
		t.Fatalf("narrative = %q", sum.Narrative)
	}
}

func TestParseReplySortsLongestFirst(t *testing.T) {
	sum, err := ParseReply("body\n\nKeywords: ab, abcd, abc")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"abcd", "abc", "ab"}
	for i, kw := range want {
		if sum.Keywords[i] != kw {
			t.Fatalf("keywords = %v, want %v", sum.Keywords, want)
		}
	}
}

func TestParseReplyDeduplicates(t *testing.T) {
	sum, err := ParseReply("body\n\nKeywords: dup, dup, other")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sum.Keywords) != 2 {
		t.Fatalf("keywords = %v", sum.Keywords)
	}
}

func TestParseReplyMalformed(t *testing.T) {
	cases := []string{
		"just one paragraph without a trailer",
		"body\n\ntrailer without separator",
		"body\n\nKeywords: ",
		"",
	}
	for _, reply := range cases {
		if _, err := ParseReply(reply); !errors.Is(err, ErrMalformedReply) {
			t.Fatalf("reply %q: err = %v", reply, err)
		}
	}
}

func TestScore(t *testing.T) {
	query := "Tell me about the trip Alice took to Paris"
	narrative := "The text recounts a trip that ended in Paris."
	keywords := []string{"Paris", "trip", "text"}

	// "trip" appears in both; "Paris" is "Paris." in the narrative and does
	// not match literally; "text" is absent from the query.
	if got := Score(query, narrative, keywords); got != 0.333 {
		t.Fatalf("score = %v", got)
	}
}

func TestScoreAllMatched(t *testing.T) {
	if got := Score("alpha beta", "alpha beta gamma", []string{"alpha", "beta"}); got != 1 {
		t.Fatalf("score = %v", got)
	}
}

func TestScoreLiteralTokens(t *testing.T) {
	// Punctuation is part of the token.
	if got := Score("Paris", "went to Paris.", []string{"Paris"}); got != 0 {
		t.Fatalf("score = %v", got)
	}
}

func TestScoreNoKeywords(t *testing.T) {
	if got := Score("query", "narrative", nil); got != 0 {
		t.Fatalf("score = %v", got)
	}
}

func TestScoreRounding(t *testing.T) {
	got := Score("a b", "a b c", []string{"a", "b", "x"})
	if got != 0.667 {
		t.Fatalf("score = %v", got)
	}
}
