package common

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ---------------------------------------------------------------------------
// Token classification contract
// ---------------------------------------------------------------------------

// Token is one tokenizer output position paired with the model's predicted
// label id (an index into the label vocabulary).
type Token struct {
	// ID is the tokenizer vocabulary id.
	ID int `json:"id"`

	// Text is the decoded token text, including any sub-word marker.
	Text string `json:"text"`

	// LabelID is the predicted BIO label index.
	LabelID int `json:"label_id"`

	// Score is the softmax probability of LabelID, 0 when unknown.
	Score float64 `json:"score,omitempty"`

	// Start and End are rune offsets into the input text. Only meaningful when
	// the enclosing TokenClassification has HasOffsets set.
	Start int `json:"start"`
	End   int `json:"end"`
}

// TokenClassification is the model collaborator's answer for one text.
type TokenClassification struct {
	Tokens []Token `json:"tokens"`

	// HasOffsets reports whether Token.Start/End were produced by the tokenizer.
	HasOffsets bool `json:"has_offsets"`

	// SpecialTokenIDs lists structural ids (bos, eos, pad) to skip when offsets
	// are unavailable.
	SpecialTokenIDs []int `json:"special_token_ids,omitempty"`

	// ModelName identifies the producing model for logs and audit records.
	ModelName string `json:"model_name,omitempty"`
}

// IsSpecial reports whether id is one of the structural token ids.
func (tc *TokenClassification) IsSpecial(id int) bool {
	for _, s := range tc.SpecialTokenIDs {
		if s == id {
			return true
		}
	}
	return false
}

// TokenClassifier produces per-token BIO predictions for a text.
type TokenClassifier interface {
	Classify(ctx context.Context, text string) (*TokenClassification, error)
	Healthy(ctx context.Context) error
	Close() error
}

// ---------------------------------------------------------------------------
// Intent classification contract
// ---------------------------------------------------------------------------

// Intent labels understood by the chatbot backend.
const (
	IntentKnowledgeQuery = "knowledge_query"
	IntentFinancialQuery = "financial_query"
	IntentDeviceControl  = "device_control"
	IntentSensorQuery    = "sensor_query"
	IntentUnknown        = "unknown"
)

// DefaultIntentLabels is the label order of the fine-tuned intent classifier.
var DefaultIntentLabels = []string{
	IntentKnowledgeQuery,
	IntentFinancialQuery,
	IntentDeviceControl,
	IntentSensorQuery,
	IntentUnknown,
}

// IntentScore is one ranked intent candidate.
type IntentScore struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// IntentPrediction is the intent classifier's answer for one text.
type IntentPrediction struct {
	Intent     string        `json:"intent"`
	Confidence float64       `json:"confidence"`
	Ranked     []IntentScore `json:"all_intents"`
}

// IntentClassifier ranks chatbot intents for a text.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string, topK int) (*IntentPrediction, error)
	Healthy(ctx context.Context) error
	Close() error
}

// ---------------------------------------------------------------------------
// Model artifacts
// ---------------------------------------------------------------------------

// Artifact describes one stored model file (ONNX graph, tokenizer, label
// mapping).
type Artifact struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// ArtifactStore is the object storage holding exported models.
type ArtifactStore interface {
	ListArtifacts(ctx context.Context, prefix string) ([]Artifact, error)
	FetchArtifact(ctx context.Context, key string, w io.Writer) error
	PutArtifact(ctx context.Context, key string, r io.Reader, size int64) error
}

// ---------------------------------------------------------------------------
// Logger interface
// ---------------------------------------------------------------------------

// Logger is the key-value logging interface used by the intelligence layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (n *noopLogger) Info(string, ...interface{})  {}
func (n *noopLogger) Warn(string, ...interface{})  {}
func (n *noopLogger) Debug(string, ...interface{}) {}
func (n *noopLogger) Error(string, ...interface{}) {}

// NewNoopLogger returns a Logger that discards all logs.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidInput   = fmt.Errorf("invalid input")
	ErrModelNotLoaded = fmt.Errorf("model not loaded")
)

//Personal.AI order the ending
