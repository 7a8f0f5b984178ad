package agri_extractor

// ---------------------------------------------------------------------------
// Entity types
// ---------------------------------------------------------------------------

// Public entity type names returned to the chatbot backend.
const (
	EntityTypeDate     = "date"
	EntityTypeCrop     = "crop_name"
	EntityTypeArea     = "farm_area"
	EntityTypeDevice   = "device_name"
	EntityTypeMetric   = "metric"
	EntityTypeDuration = "duration"
	EntityTypeMoney    = "money"
)

// Candidate sources.
const (
	SourceModel = "model"
	SourceRule  = "rule"
)

// EntitySpan is one typed span of the input text. Start and End are rune
// offsets, end-exclusive, and Raw always equals the text between them.
type EntitySpan struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Source     string  `json:"source,omitempty"`
}

// Len returns the span length in runes.
func (e *EntitySpan) Len() int {
	return e.End - e.Start
}

// newSpan builds a span over runes[start:end]. Out-of-range or inverted
// offsets yield ok=false so malformed candidates never leave the constructor.
func newSpan(runes []rune, typ string, start, end int, confidence float64, source string) (*EntitySpan, bool) {
	if start < 0 || end > len(runes) || start > end {
		return nil, false
	}
	return &EntitySpan{
		Type:       typ,
		Raw:        string(runes[start:end]),
		Start:      start,
		End:        end,
		Confidence: confidence,
		Source:     source,
	}, true
}

// extendSpan moves the end of e to end and recomputes Raw. It refuses ends
// that would fall outside the text or before the span start.
func extendSpan(runes []rune, e *EntitySpan, end int) bool {
	if end > len(runes) || end < e.Start {
		return false
	}
	e.End = end
	e.Raw = string(runes[e.Start:end])
	return true
}

//Personal.AI order the ending
