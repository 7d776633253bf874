package usecase

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// ParseAnalysis turns free-form model output into an AnalysisResult. It never
// fails. The boolean reports whether no JSON object could be recovered and the
// whole response was used as the summary.
//
// Candidate objects are tried in order: the greedy span from the first '{' to the
// last '}', then the first complete JSON value starting at the first '{'. Fields
// missing from a decoded object take their per-field defaults.
func ParseAnalysis(raw string) (domain.AnalysisResult, bool) {
	for _, candidate := range jsonCandidates(raw) {
		fields, ok := decodeObject(candidate)
		if !ok {
			continue
		}
		return domain.AnalysisResult{
			Summary: fieldOr(fields, "summary", domain.DefaultSummary),
			Author:  fieldOr(fields, "author", domain.DefaultAuthor),
			Entity:  fieldOr(fields, "entity", domain.DefaultEntity),
			KeyInfo: fieldOr(fields, "keyInfo", domain.DefaultKeyInfo),
		}, false
	}

	summary := raw
	if strings.TrimSpace(summary) == "" {
		summary = domain.DefaultSummary
	}
	return domain.AnalysisResult{
		Summary: summary,
		Author:  domain.DefaultAuthor,
		Entity:  domain.DefaultEntity,
		KeyInfo: domain.DefaultKeyInfo,
	}, true
}

func jsonCandidates(raw string) []string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}
	candidates := []string{raw[start : end+1]}

	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	var first json.RawMessage
	if err := dec.Decode(&first); err == nil && len(first) != end-start+1 {
		candidates = append(candidates, string(first))
	}
	return candidates
}

func decodeObject(candidate string) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func fieldOr(fields map[string]json.RawMessage, key, fallback string) string {
	raw, ok := fields[key]
	if !ok {
		return fallback
	}
	text := renderField(raw)
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

// renderField prints strings as-is, string lists joined, and anything else as
// compact JSON.
func renderField(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return strings.Join(list, ", ")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err == nil {
		return compact.String()
	}
	return string(trimmed)
}
