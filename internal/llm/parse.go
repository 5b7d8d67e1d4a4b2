package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/praxislabs/tenet/internal/domain"
)

// parseExtraction reads the analyzer's JSON object out of a model
// response. Models wrap JSON in code fences or prose often enough that
// this has to hunt for the outermost object; anything unparseable is a
// per-trace failure for the caller to record.
func parseExtraction(raw string) (*domain.TraceExtraction, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in analyzer response")
	}

	var extraction domain.TraceExtraction
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &extraction); err != nil {
		return nil, fmt.Errorf("unmarshal analyzer response: %w", err)
	}

	// Drop malformed entries instead of failing the whole extraction.
	principles := extraction.Principles[:0]
	for _, p := range extraction.Principles {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if p.Confidence < 0 {
			p.Confidence = 0
		}
		if p.Confidence > 1 {
			p.Confidence = 1
		}
		principles = append(principles, p)
	}
	extraction.Principles = principles
	return &extraction, nil
}
