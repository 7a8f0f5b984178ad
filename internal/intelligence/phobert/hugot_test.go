package phobert

import (
	"context"
	"errors"
	"testing"

	"github.com/knights-analytics/hugot/pipelines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	apperrors "github.com/turtacn/AgriBot-NLU/pkg/errors"
)

type fakeTokenPipeline struct {
	out    *pipelines.TokenClassificationOutput
	err    error
	inputs []string
}

func (f *fakeTokenPipeline) RunPipeline(inputs []string) (*pipelines.TokenClassificationOutput, error) {
	f.inputs = append(f.inputs, inputs...)
	return f.out, f.err
}

type fakeTextPipeline struct {
	out *pipelines.TextClassificationOutput
	err error
}

func (f *fakeTextPipeline) RunPipeline([]string) (*pipelines.TextClassificationOutput, error) {
	return f.out, f.err
}

// "trồng cà chua" in bytes: "trồng" is 7 bytes (ồ is 3), "cà" 3 bytes.
const plantText = "trồng cà chua"

func TestHugotTokenClassifier_ConvertsOffsetsAndLabels(t *testing.T) {
	p := &fakeTokenPipeline{out: &pipelines.TokenClassificationOutput{
		Entities: [][]pipelines.Entity{{
			{Entity: "O", Score: 0.99, Index: 1, Word: "trồng", Start: 0, End: 7},
			{Entity: "B-CROP", Score: 0.91, Index: 2, Word: "cà", Start: 8, End: 11},
			{Entity: "I-CROP", Score: 0.88, Index: 3, Word: "chua", Start: 12, End: 16},
			{Entity: "B-WEIRD", Score: 0.5, Index: 4, Word: "", Start: 16, End: 16},
		}},
	}}
	metrics := common.NewInMemoryModelMetrics()
	c := newHugotTokenClassifier("ner", p, nil, metrics, nil)

	tc, err := c.Classify(context.Background(), plantText)
	require.NoError(t, err)
	assert.True(t, tc.HasOffsets)
	assert.Equal(t, "ner", tc.ModelName)
	require.Len(t, tc.Tokens, 4)

	vocab := agri_extractor.DefaultLabelVocabulary()
	bCrop, _ := vocab.ID("B-CROP")
	iCrop, _ := vocab.ID("I-CROP")

	assert.Equal(t, common.Token{ID: 2, Text: "cà", LabelID: bCrop, Score: float64(float32(0.91)), Start: 6, End: 8}, tc.Tokens[1])
	assert.Equal(t, iCrop, tc.Tokens[2].LabelID)
	assert.Equal(t, 9, tc.Tokens[2].Start)
	assert.Equal(t, 13, tc.Tokens[2].End)
	assert.Equal(t, -1, tc.Tokens[3].LabelID)
	assert.Equal(t, []string{plantText}, p.inputs)

	inf := metrics.Inferences()
	require.Len(t, inf, 1)
	assert.True(t, inf[0].Success)
	assert.Equal(t, 4, inf[0].InputTokens)
	assert.Equal(t, BackendHugot, inf[0].Backend)

	spans := agri_extractor.NewEngine().Decode(plantText, tc)
	require.NotEmpty(t, spans)
	assert.Equal(t, "cà chua", spans[0].Raw)
}

func TestHugotTokenClassifier_Errors(t *testing.T) {
	metrics := common.NewInMemoryModelMetrics()
	c := newHugotTokenClassifier("ner", &fakeTokenPipeline{err: errors.New("onnx exploded")}, nil, metrics, nil)

	_, err := c.Classify(context.Background(), "x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInferenceFailed))

	c = newHugotTokenClassifier("ner", &fakeTokenPipeline{out: &pipelines.TokenClassificationOutput{}}, nil, metrics, nil)
	_, err = c.Classify(context.Background(), "x")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInferenceFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Classify(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, int64(2), metrics.GetCurrentStats().FailedInferences)
}

func TestHugotTokenClassifier_Healthy(t *testing.T) {
	c := newHugotTokenClassifier("ner", &fakeTokenPipeline{}, nil, nil, nil)
	assert.NoError(t, c.Healthy(context.Background()))
	assert.NoError(t, c.Close())

	empty := &HugotTokenClassifier{}
	assert.ErrorIs(t, empty.Healthy(context.Background()), common.ErrModelNotLoaded)
}

func TestHugotIntentClassifier_RanksAndMapsLabels(t *testing.T) {
	p := &fakeTextPipeline{out: &pipelines.TextClassificationOutput{
		ClassificationOutputs: [][]pipelines.ClassificationOutput{{
			{Label: "LABEL_0", Score: 0.05},
			{Label: "LABEL_1", Score: 0.10},
			{Label: "LABEL_2", Score: 0.80},
			{Label: "sensor_query", Score: 0.04},
			{Label: "LABEL_9", Score: 0.01},
		}},
	}}
	c := newHugotIntentClassifier("intent", p, nil, nil)

	pred, err := c.ClassifyIntent(context.Background(), "bật máy bơm", 3)
	require.NoError(t, err)
	assert.Equal(t, common.IntentDeviceControl, pred.Intent)
	assert.InDelta(t, 0.80, pred.Confidence, 1e-6)
	require.Len(t, pred.Ranked, 3)
	assert.Equal(t, common.IntentFinancialQuery, pred.Ranked[1].Intent)
	assert.Equal(t, common.IntentKnowledgeQuery, pred.Ranked[2].Intent)

	pred, err = c.ClassifyIntent(context.Background(), "x", 100)
	require.NoError(t, err)
	assert.Len(t, pred.Ranked, 5)
	assert.Equal(t, "LABEL_9", pred.Ranked[4].Intent)
}

func TestHugotIntentClassifier_Errors(t *testing.T) {
	c := newHugotIntentClassifier("intent", &fakeTextPipeline{err: errors.New("boom")}, nil, nil)
	_, err := c.ClassifyIntent(context.Background(), "x", 3)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInferenceFailed))

	c = newHugotIntentClassifier("intent", &fakeTextPipeline{out: &pipelines.TextClassificationOutput{}}, nil, nil)
	_, err = c.ClassifyIntent(context.Background(), "x", 3)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInferenceFailed))
}

func TestRankIntents_TopKClamp(t *testing.T) {
	scores := []common.IntentScore{{Intent: "a", Confidence: 0.2}, {Intent: "b", Confidence: 0.7}, {Intent: "c", Confidence: 0.2}}
	pred := rankIntents(scores, 0)
	assert.Equal(t, "b", pred.Intent)
	assert.Len(t, pred.Ranked, 1)

	scores = []common.IntentScore{{Intent: "a", Confidence: 0.2}, {Intent: "b", Confidence: 0.7}, {Intent: "c", Confidence: 0.2}}
	pred = rankIntents(scores, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{pred.Ranked[0].Intent, pred.Ranked[1].Intent, pred.Ranked[2].Intent})
}

func TestNewHugotClassifiers_Validation(t *testing.T) {
	_, err := NewHugotTokenClassifier(nil, HugotConfig{ModelPath: "/models/ner"}, nil, nil, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeModelNotAvailable))

	_, err = NewHugotIntentClassifier(&Session{}, HugotConfig{}, nil, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

//Personal.AI order the ending
