package llm

import "testing"

func TestParseExtractionPlainJSON(t *testing.T) {
	raw := `{"classification": "debugging", "principles": [{"text": "Reproduce first", "confidence": 0.9}], "tags": ["debugging"]}`

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if got.Classification != "debugging" {
		t.Errorf("classification = %q", got.Classification)
	}
	if len(got.Principles) != 1 || got.Principles[0].Text != "Reproduce first" {
		t.Errorf("principles = %+v", got.Principles)
	}
}

func TestParseExtractionCodeFences(t *testing.T) {
	raw := "```json\n{\"classification\": \"other\", \"principles\": [{\"text\": \"p\", \"confidence\": 0.5}]}\n```"

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if len(got.Principles) != 1 {
		t.Errorf("expected 1 principle, got %d", len(got.Principles))
	}
}

func TestParseExtractionSurroundingProse(t *testing.T) {
	raw := `Here is the analysis you asked for:
{"classification": "implementation", "principles": [{"text": "p", "confidence": 0.7}]}
Let me know if you need anything else.`

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if got.Classification != "implementation" {
		t.Errorf("classification = %q", got.Classification)
	}
}

func TestParseExtractionDropsEmptyPrinciples(t *testing.T) {
	raw := `{"principles": [{"text": "", "confidence": 0.9}, {"text": "   ", "confidence": 0.9}, {"text": "keep me", "confidence": 0.9}]}`

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if len(got.Principles) != 1 || got.Principles[0].Text != "keep me" {
		t.Errorf("principles = %+v", got.Principles)
	}
}

func TestParseExtractionClampsConfidence(t *testing.T) {
	raw := `{"principles": [{"text": "low", "confidence": -0.3}, {"text": "high", "confidence": 1.8}]}`

	got, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("parseExtraction: %v", err)
	}
	if got.Principles[0].Confidence != 0 {
		t.Errorf("negative confidence should clamp to 0, got %f", got.Principles[0].Confidence)
	}
	if got.Principles[1].Confidence != 1 {
		t.Errorf("oversized confidence should clamp to 1, got %f", got.Principles[1].Confidence)
	}
}

func TestParseExtractionMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "the model rambled instead"},
		{"broken JSON", `{"principles": [}`},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseExtraction(tt.raw); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
