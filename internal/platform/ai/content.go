package ai

import (
	"encoding/json"
	"strings"
)

// ---------------------------------------------------------------------------
// Parsed provider output
// ---------------------------------------------------------------------------

// ContentKind discriminates structured from unstructured parsed content.
type ContentKind string

const (
	ContentStructured   ContentKind = "structured"
	ContentUnstructured ContentKind = "unstructured"
)

// ParsedContent is provider output in a usable shape. Providers are asked
// for JSON but routinely answer with prose or fenced code blocks, so a
// parse either yields structured fields or falls back to the raw text.
type ParsedContent struct {
	Kind   ContentKind       `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
	Raw    string            `json:"raw"`
}

// Structured builds a ParsedContent carrying extracted fields.
func Structured(fields map[string]string, raw string) ParsedContent {
	return ParsedContent{Kind: ContentStructured, Fields: fields, Raw: raw}
}

// Unstructured builds the fallback ParsedContent carrying only raw text.
func Unstructured(raw string) ParsedContent {
	return ParsedContent{Kind: ContentUnstructured, Raw: raw}
}

// Field returns a named field, or "" when absent or unstructured.
func (p ParsedContent) Field(name string) string {
	return p.Fields[name]
}

// ParseContent extracts a flat JSON object from raw provider output,
// tolerating a surrounding markdown code fence. Values that are not strings
// are kept as compact JSON. Anything that is not a JSON object degrades to
// unstructured content rather than an error.
func ParseContent(raw string) ParsedContent {
	text := stripCodeFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(text, "{") {
		return Unstructured(raw)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Unstructured(raw)
	}
	if len(obj) == 0 {
		return Unstructured(raw)
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case nil:
			fields[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return Unstructured(raw)
			}
			fields[k] = string(b)
		}
	}
	return Structured(fields, raw)
}

// stripCodeFence removes a leading "```" or "```json" line and the matching
// trailing fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ---------------------------------------------------------------------------
// Confidence scoring
// ---------------------------------------------------------------------------

// ConfidenceConfig holds the confidence heuristic's tuning knobs. The
// constants carry no clinical meaning; they only rank responses relative to
// each other, so they are configurable rather than baked in.
type ConfidenceConfig struct {
	Base         float64 // starting score for any successful response
	LengthBonus  float64 // awarded once the response reaches MinLength
	MinLength    int
	LongBonus    float64 // awarded additionally at LongLength
	LongLength   int
	KeywordBonus float64 // per matched task keyword
	KeywordCap   float64 // upper bound on the keyword contribution
}

// DefaultConfidenceConfig returns the default heuristic tuning.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		Base:         0.5,
		LengthBonus:  0.2,
		MinLength:    200,
		LongBonus:    0.1,
		LongLength:   800,
		KeywordBonus: 0.05,
		KeywordCap:   0.2,
	}
}

// ScoreConfidence estimates response quality in [0, 1]: a base score plus
// bonuses for response length and for task keywords present in the text.
func ScoreConfidence(cfg ConfidenceConfig, content string, keywords []string) float64 {
	score := cfg.Base

	if cfg.MinLength > 0 && len(content) >= cfg.MinLength {
		score += cfg.LengthBonus
	}
	if cfg.LongLength > 0 && len(content) >= cfg.LongLength {
		score += cfg.LongBonus
	}

	var kw float64
	lower := strings.ToLower(content)
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(k)) {
			kw += cfg.KeywordBonus
		}
	}
	if kw > cfg.KeywordCap {
		kw = cfg.KeywordCap
	}
	score += kw

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
