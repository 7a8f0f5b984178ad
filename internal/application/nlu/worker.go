package nlu

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// Deduplicator ensures one worker analyses a given chat message.
type Deduplicator interface {
	Claim(ctx context.Context, messageID string) (redis.ClaimState, error)
	Complete(ctx context.Context, messageID string) error
	Release(ctx context.Context, messageID string) error
}

// ErrMessageInFlight is returned for a message another worker has claimed but
// not completed. It is retryable.
var ErrMessageInFlight = errors.New(errors.ErrCodeServiceUnavailable, "chat message is being processed by another worker")

// ProcessorConfig configures ChatMessageProcessor.
type ProcessorConfig struct {
	OutputTopic string
	DefaultTopK int
	// Timeout bounds one analysis; zero means no limit beyond the consumer's.
	Timeout time.Duration
}

// ChatMessageProcessor turns chat.message.received events into
// nlu.analysis.completed events.
type ChatMessageProcessor struct {
	svc       Service
	publisher EventPublisher
	dedup     Deduplicator
	cfg       ProcessorConfig
	logger    logging.Logger
}

// NewChatMessageProcessor wires a processor. dedup may be nil.
func NewChatMessageProcessor(svc Service, publisher EventPublisher, dedup Deduplicator, cfg ProcessorConfig, logger logging.Logger) *ChatMessageProcessor {
	if cfg.OutputTopic == "" {
		cfg.OutputTopic = kafka.TopicAnalysisCompleted
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ChatMessageProcessor{
		svc:       svc,
		publisher: publisher,
		dedup:     dedup,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Handle is a kafka.MessageHandler. Malformed messages and client errors are
// permanent so the consumer dead-letters them at once. A message claimed by
// another worker is not acknowledged: the error makes the consumer retry it
// until the claim is completed or expires.
func (p *ChatMessageProcessor) Handle(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return kafka.Permanent(err)
	}
	var in kafka.ChatMessageReceivedPayload
	if err := env.DecodePayload(&in); err != nil {
		return kafka.Permanent(err)
	}
	if strings.TrimSpace(in.MessageID) == "" {
		return kafka.Permanent(errors.New(errors.ErrCodeValidation, "message_id is required").WithDetail(env.EventID))
	}

	log := p.logger.With(
		logging.String("message_id", in.MessageID),
		logging.String("conversation_id", in.ConversationID))

	if p.dedup != nil {
		state, err := p.dedup.Claim(ctx, in.MessageID)
		switch {
		case err != nil:
			log.Warn("Dedup claim failed, processing anyway", logging.Err(err))
		case state == redis.ClaimDone:
			log.Info("Skipping duplicate chat message")
			return nil
		case state == redis.ClaimBusy:
			log.Info("Chat message is being processed elsewhere")
			return ErrMessageInFlight.WithDetail(in.MessageID)
		}
	}

	if err := p.process(ctx, env, &in); err != nil {
		p.release(ctx, in.MessageID, log)
		if code := errors.GetCode(err); code != errors.CodeUnknown && errors.IsClientError(code) {
			return kafka.Permanent(err)
		}
		return err
	}

	if p.dedup != nil {
		if err := p.dedup.Complete(ctx, in.MessageID); err != nil {
			log.Warn("Failed to mark chat message done", logging.Err(err))
		}
	}
	return nil
}

func (p *ChatMessageProcessor) process(ctx context.Context, env *kafka.EventEnvelope, in *kafka.ChatMessageReceivedPayload) error {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	ctx = WithRequestMeta(ctx, RequestMeta{RequestID: in.MessageID, Source: SourceWorker})

	topK := in.TopK
	if topK <= 0 {
		topK = p.cfg.DefaultTopK
	}
	res, err := p.svc.Analyze(ctx, in.Text, topK)
	if err != nil {
		return err
	}

	out, err := kafka.NewEventEnvelope(kafka.EventTypeAnalysis, kafka.EventSourceNLU, kafka.AnalysisCompletedPayload{
		MessageID:        in.MessageID,
		ConversationID:   in.ConversationID,
		Intent:           res.Intent,
		IntentConfidence: res.IntentConfidence,
		Entities:         EntityPayloads(res.Entities),
		ModelDegraded:    res.ModelDegraded,
		ProcessingTimeMs: res.ProcessingTimeMs,
		AnalyzedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	out.TraceID = env.TraceID
	if out.TraceID == "" {
		out.TraceID = in.MessageID
	}

	key := in.ConversationID
	if key == "" {
		key = in.MessageID
	}
	if err := p.publisher.PublishEvent(ctx, p.cfg.OutputTopic, key, out); err != nil {
		return err
	}
	return nil
}

func (p *ChatMessageProcessor) release(ctx context.Context, messageID string, log logging.Logger) {
	if p.dedup == nil {
		return
	}
	if err := p.dedup.Release(context.WithoutCancel(ctx), messageID); err != nil {
		log.Warn("Failed to release chat message claim", logging.Err(err))
	}
}

//Personal.AI order the ending
