// Package nlu holds the wire types of the AgriBot NLU HTTP API. They mirror
// the server's JSON without importing its internals, so chatbot backends can
// depend on them directly.
package nlu

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Entity types produced by the extractor.
const (
	TypeDate     = "date"
	TypeCrop     = "crop_name"
	TypeArea     = "farm_area"
	TypeDevice   = "device_name"
	TypeMetric   = "metric"
	TypeDuration = "duration"
	TypeMoney    = "money"
)

// Candidate sources reported in Entity.Source.
const (
	SourceModel = "model"
	SourceRule  = "rule"
)

// Decode paths reported in ExtractionResult.DecodePath.
const (
	PathOffset     = "offset"
	PathOffsetless = "offsetless"
	PathRulesOnly  = "rules_only"
)

// Entity is one extracted span. Start and End are rune offsets into the
// original text, End exclusive.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Source     string  `json:"source,omitempty"`
}

// Text returns the normalized value when present, else the raw surface form.
func (e Entity) Text() string {
	if e.Value != "" {
		return e.Value
	}
	return e.Raw
}

// Len is the span length in runes.
func (e Entity) Len() int { return e.End - e.Start }

// Overlaps reports whether the two spans share at least one rune.
func (e Entity) Overlaps(o Entity) bool {
	return e.Start < o.End && o.Start < e.End
}

// ExtractionResult is the answer of POST /api/v1/ner/extract.
type ExtractionResult struct {
	Text             string    `json:"text"`
	Entities         []*Entity `json:"entities"`
	EntityCount      int       `json:"entity_count"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	DecodePath       string    `json:"decode_path"`
	ModelDegraded    bool      `json:"model_degraded,omitempty"`
	UnmatchedTokens  int       `json:"unmatched_tokens,omitempty"`
}

// EntitiesOfType returns the entities of type typ, in text order.
func (r *ExtractionResult) EntitiesOfType(typ string) []*Entity {
	if r == nil {
		return nil
	}
	var out []*Entity
	for _, e := range r.Entities {
		if e != nil && strings.EqualFold(e.Type, typ) {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first entity of type typ, or nil.
func (r *ExtractionResult) First(typ string) *Entity {
	if es := r.EntitiesOfType(typ); len(es) > 0 {
		return es[0]
	}
	return nil
}

// GroupByType buckets entity texts by type.
func (r *ExtractionResult) GroupByType() map[string][]string {
	out := make(map[string][]string)
	if r == nil {
		return out
	}
	for _, e := range r.Entities {
		if e == nil {
			continue
		}
		out[e.Type] = append(out[e.Type], e.Text())
	}
	return out
}

// BatchResult is the answer of POST /api/v1/ner/extract/batch.
type BatchResult struct {
	Results          []*ExtractionResult `json:"results"`
	Count            int                 `json:"count"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
}

// IntentScore is one ranked intent candidate.
type IntentScore struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentResult is the answer of POST /api/v1/intent/classify.
type IntentResult struct {
	Intent           string        `json:"intent"`
	Confidence       float64       `json:"confidence"`
	AllIntents       []IntentScore `json:"all_intents"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
}

// AnalysisResult is the answer of POST /api/v1/analyze.
type AnalysisResult struct {
	Intent           string        `json:"intent"`
	IntentConfidence float64       `json:"intent_confidence"`
	AllIntents       []IntentScore `json:"all_intents"`
	Entities         []*Entity     `json:"entities"`
	EntityCount      int           `json:"entity_count"`
	DecodePath       string        `json:"decode_path"`
	ModelDegraded    bool          `json:"model_degraded"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
}

// LabelsInfo is the answer of GET /api/v1/ner/labels.
type LabelsInfo struct {
	Labels      []string          `json:"labels"`
	TypeMap     map[string]string `json:"type_map"`
	Fingerprint string            `json:"fingerprint"`
}

// Rule is one entry of the rule table.
type Rule struct {
	Name        string  `json:"name"`
	Pattern     string  `json:"pattern"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	WordBounded bool    `json:"word_bounded"`
}

// RulesResult is the answer of GET /api/v1/ner/rules.
type RulesResult struct {
	Rules []Rule `json:"rules"`
}

// TextRequest is the body of the single-text endpoints.
type TextRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

// Validate applies the client-side subset of the server checks. maxRunes of
// zero skips the length check.
func (r TextRequest) Validate(maxRunes int) error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if !utf8.ValidString(r.Text) {
		return fmt.Errorf("text is not valid UTF-8")
	}
	if maxRunes > 0 && utf8.RuneCountInString(r.Text) > maxRunes {
		return fmt.Errorf("text exceeds %d characters", maxRunes)
	}
	if r.TopK < 0 {
		return fmt.Errorf("top_k must not be negative")
	}
	return nil
}

// BatchRequest is the body of POST /api/v1/ner/extract/batch.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ComponentStatus is one dependency in a readiness report.
type ComponentStatus struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

// Liveness is the answer of GET /healthz.
type Liveness struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Readiness is the answer of GET /readyz, for both 200 and 503.
type Readiness struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// Ready reports whether the server declared itself ready.
func (r *Readiness) Ready() bool { return r != nil && r.Status == "ready" }

// Down lists the components reported down, sorted by name.
func (r *Readiness) Down() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name, c := range r.Components {
		if c.Status != "up" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

//Personal.AI order the ending
