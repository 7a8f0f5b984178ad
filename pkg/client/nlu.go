package client

import (
	"context"
	"strconv"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

// NERClient calls the entity extraction endpoints.
type NERClient struct {
	client *Client
}

// Extract runs entity extraction on one text.
func (n *NERClient) Extract(ctx context.Context, text string) (*nlu.ExtractionResult, error) {
	req := nlu.TextRequest{Text: text}
	if err := n.client.validate(req); err != nil {
		return nil, err
	}
	var out nlu.ExtractionResult
	if err := n.client.post(ctx, apiPrefix+"/ner/extract", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractBatch extracts every text in one call. Results keep input order.
func (n *NERClient) ExtractBatch(ctx context.Context, texts []string) (*nlu.BatchResult, error) {
	if len(texts) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "texts must not be empty")
	}
	for i, t := range texts {
		if err := n.client.validate(nlu.TextRequest{Text: t}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid batch item").WithDetail("index " + strconv.Itoa(i))
		}
	}
	var out nlu.BatchResult
	if err := n.client.post(ctx, apiPrefix+"/ner/extract/batch", nlu.BatchRequest{Texts: texts}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Labels returns the server's label set and its fingerprint.
func (n *NERClient) Labels(ctx context.Context) (*nlu.LabelsInfo, error) {
	var out nlu.LabelsInfo
	if err := n.client.get(ctx, apiPrefix+"/ner/labels", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rules returns the rule table.
func (n *NERClient) Rules(ctx context.Context) ([]nlu.Rule, error) {
	var out nlu.RulesResult
	if err := n.client.get(ctx, apiPrefix+"/ner/rules", &out); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

// IntentClient calls the intent and combined analysis endpoints.
type IntentClient struct {
	client *Client
}

// Classify ranks intents for text. topK of zero uses the server default.
func (i *IntentClient) Classify(ctx context.Context, text string, topK int) (*nlu.IntentResult, error) {
	req := nlu.TextRequest{Text: text, TopK: topK}
	if err := i.client.validate(req); err != nil {
		return nil, err
	}
	var out nlu.IntentResult
	if err := i.client.post(ctx, apiPrefix+"/intent/classify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze classifies the intent and extracts entities in one call.
func (i *IntentClient) Analyze(ctx context.Context, text string, topK int) (*nlu.AnalysisResult, error) {
	req := nlu.TextRequest{Text: text, TopK: topK}
	if err := i.client.validate(req); err != nil {
		return nil, err
	}
	var out nlu.AnalysisResult
	if err := i.client.post(ctx, apiPrefix+"/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) validate(req nlu.TextRequest) error {
	if err := req.Validate(c.maxTextRunes); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid request").WithDetail(err.Error())
	}
	return nil
}

//Personal.AI order the ending
