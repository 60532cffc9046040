package recognize

import (
	"context"
	"testing"
)

func TestRegexEngineFindsStructuredPII(t *testing.T) {
	eng := NewRegex(nil)
	text := "Contact alice@example.com or call +1 415-555-0100. SSN 123-45-6789."

	spans, err := eng.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(spans) == 0 {
		t.Fatalf("expected spans, got none")
	}

	byType := map[string]Span{}
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			t.Fatalf("invalid span %+v", s)
		}
		if _, ok := byType[s.Type]; !ok {
			byType[s.Type] = s
		}
	}

	email, ok := byType[TypeEmail]
	if !ok {
		t.Fatalf("no email span: %+v", spans)
	}
	if got := text[email.Start:email.End]; got != "alice@example.com" {
		t.Fatalf("email span text = %q", got)
	}
	if _, ok := byType[TypePhone]; !ok {
		t.Fatalf("no phone span: %+v", spans)
	}
	ssn, ok := byType[TypeSSN]
	if !ok {
		t.Fatalf("no ssn span: %+v", spans)
	}
	if got := text[ssn.Start:ssn.End]; got != "123-45-6789" {
		t.Fatalf("ssn span text = %q", got)
	}
}

func TestRegexEngineTitledPersonHeuristic(t *testing.T) {
	eng := NewRegex(nil)
	text := "Dr. Jane Doe signed off, but the driveway stays."

	spans, err := eng.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var person *Span
	for i := range spans {
		if spans[i].Type == TypePerson {
			person = &spans[i]
			break
		}
	}
	if person == nil {
		t.Fatalf("no person span: %+v", spans)
	}
	if got := text[person.Start:person.End]; got != "Dr. Jane Doe" {
		t.Fatalf("person span text = %q", got)
	}
	// Bare names without an honorific are out of reach for the regex engine.
	spans, err = eng.Analyze(context.Background(), "Jane Doe signed off.")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, s := range spans {
		if s.Type == TypePerson {
			t.Fatalf("unexpected person span: %+v", s)
		}
	}
}

func TestRegexEngineAllowlist(t *testing.T) {
	eng := NewRegex([]string{TypeEmail})
	text := "alice@example.com SSN 123-45-6789"

	spans, err := eng.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, s := range spans {
		if s.Type != TypeEmail {
			t.Fatalf("allowlist leaked type %q", s.Type)
		}
	}
	if len(spans) != 1 {
		t.Fatalf("expected exactly one email span, got %d", len(spans))
	}
}

func TestRegexEngineSortsByStart(t *testing.T) {
	eng := NewRegex(nil)
	spans, err := eng.Analyze(context.Background(), "ip 10.0.0.1 then bob@example.com then 192.168.1.1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].Start {
			t.Fatalf("spans not sorted: %+v", spans)
		}
	}
}

func TestSplitWordsWithOffsets(t *testing.T) {
	spans := splitWordsWithOffsets("Alice went to Paris.")
	want := []string{"Alice", "went", "to", "Paris", "."}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans, want %d: %+v", len(spans), len(want), spans)
	}
	for i, w := range want {
		if spans[i].Text != w {
			t.Fatalf("span %d = %q, want %q", i, spans[i].Text, w)
		}
	}
	if spans[3].Start != 14 || spans[3].End != 19 {
		t.Fatalf("Paris offsets = %d..%d", spans[3].Start, spans[3].End)
	}
}

func testTokenizer() *wordPieceTokenizer {
	vocab := map[string]int64{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"alice": 4, "met": 5, "bob": 6, "##by": 7, ".": 8,
	}
	return &wordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    true,
		continuation: "##",
		clsID:        2,
		sepID:        3,
		padID:        0,
		unkID:        1,
	}
}

func TestEncodeWithOffsets(t *testing.T) {
	tok := testTokenizer()
	text := "Alice met Bobby."
	ids, attn, offsets := tok.encodeWithOffsets(text, 16)

	if len(ids) != 16 || len(attn) != 16 || len(offsets) != 16 {
		t.Fatalf("lengths: ids=%d attn=%d offsets=%d", len(ids), len(attn), len(offsets))
	}
	if ids[0] != tok.clsID {
		t.Fatalf("first token should be CLS, got %d", ids[0])
	}
	// CLS alice met bob ##by . SEP => 7 attended tokens.
	var attended int
	for _, a := range attn {
		attended += int(a)
	}
	if attended != 7 {
		t.Fatalf("attended tokens = %d", attended)
	}
	if offsets[0].Start != -1 {
		t.Fatalf("CLS offset should be -1, got %+v", offsets[0])
	}
	// "alice" maps back to the original bytes.
	if got := text[offsets[1].Start:offsets[1].End]; got != "Alice" {
		t.Fatalf("token 1 covers %q", got)
	}
	// "##by" continues "Bobby" at byte 13.
	if offsets[4].Start != 13 || offsets[4].End != 15 {
		t.Fatalf("continuation offsets = %+v", offsets[4])
	}
}

func TestSpansFromTokenLabelsMergesBIO(t *testing.T) {
	offsets := []tokenOffset{
		{-1, -1},  // CLS
		{0, 5},    // Alice
		{6, 9},    // met
		{10, 13},  // Bob
		{13, 15},  // ##by
		{15, 16},  // .
		{-1, -1},  // SEP
	}
	labels := []string{"O", "B-PERSON", "O", "B-PERSON", "I-PERSON", "O", "O"}

	spans := spansFromTokenLabels(labels, offsets)
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(spans), spans)
	}
	if spans[0].Start != 0 || spans[0].End != 5 || spans[0].Type != "PERSON" {
		t.Fatalf("first span = %+v", spans[0])
	}
	if spans[1].Start != 10 || spans[1].End != 15 {
		t.Fatalf("second span = %+v", spans[1])
	}
}

func TestSpansFromTokenLabelsIgnoresSpecialTokens(t *testing.T) {
	offsets := []tokenOffset{{-1, -1}, {0, 5}, {-1, -1}}
	labels := []string{"B-PERSON", "B-PERSON", "I-PERSON"}

	spans := spansFromTokenLabels(labels, offsets)
	if len(spans) != 1 || spans[0].Start != 0 || spans[0].End != 5 {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestMergeSpansJoinsOverlaps(t *testing.T) {
	spans := mergeSpans([]Span{
		{Start: 10, End: 15, Type: "PERSON"},
		{Start: 0, End: 5, Type: "PERSON"},
		{Start: 4, End: 8, Type: "PERSON"},
		{Start: 20, End: 25, Type: "LOCATION"},
	})
	if len(spans) != 3 {
		t.Fatalf("got %d spans: %+v", len(spans), spans)
	}
	if spans[0].Start != 0 || spans[0].End != 8 {
		t.Fatalf("merged span = %+v", spans[0])
	}
}

func TestNoopEngine(t *testing.T) {
	spans, err := NewNoop().Analyze(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if spans != nil {
		t.Fatalf("noop returned spans: %+v", spans)
	}
}
