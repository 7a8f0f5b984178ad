package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

const dedupDoneValue = "done"

// releaseScript deletes the claim only while this owner still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// completeScript turns this owner's claim into a done marker.
var completeScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	else
		return 0
	end
`)

// ClaimState is the outcome of Deduplicator.Claim.
type ClaimState uint8

const (
	// ClaimAcquired means the caller now owns the message.
	ClaimAcquired ClaimState = iota
	// ClaimDone means the message was already processed.
	ClaimDone
	// ClaimBusy means another owner holds an unexpired claim. That owner may
	// have crashed, so the message must not be acknowledged.
	ClaimBusy
)

func (s ClaimState) String() string {
	switch s {
	case ClaimAcquired:
		return "acquired"
	case ClaimDone:
		return "done"
	default:
		return "busy"
	}
}

// Deduplicator guarantees that a chat message is analysed by one worker. A
// claim is held for ClaimTTL while processing and replaced by a done marker
// kept for DoneTTL.
type Deduplicator struct {
	client   *Client
	logger   logging.Logger
	owner    string
	claimTTL time.Duration
	doneTTL  time.Duration
}

// NewDeduplicator creates a deduplicator with a random owner id.
func NewDeduplicator(client *Client, claimTTL, doneTTL time.Duration, log logging.Logger) *Deduplicator {
	if claimTTL <= 0 {
		claimTTL = 2 * time.Minute
	}
	if doneTTL <= 0 {
		doneTTL = 24 * time.Hour
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Deduplicator{
		client:   client,
		logger:   log,
		owner:    uuid.NewString(),
		claimTTL: claimTTL,
		doneTTL:  doneTTL,
	}
}

func (d *Deduplicator) key(messageID string) string {
	return d.client.config.KeyPrefix + "dedup:" + messageID
}

// Claim tries to take messageID. A claim that expires between the SETNX and
// the GET is retried once.
func (d *Deduplicator) Claim(ctx context.Context, messageID string) (ClaimState, error) {
	key := d.key(messageID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := d.client.SetNX(ctx, key, d.owner, d.claimTTL).Result()
		if err != nil {
			return ClaimBusy, errors.Wrap(err, errors.ErrCodeCacheError, "failed to claim message")
		}
		if ok {
			return ClaimAcquired, nil
		}
		val, err := d.client.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			continue
		case err != nil:
			return ClaimBusy, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read message claim")
		case val == dedupDoneValue:
			return ClaimDone, nil
		}
		d.logger.Debug("Message claimed by another owner", logging.String("message_id", messageID))
		return ClaimBusy, nil
	}
	return ClaimBusy, nil
}

// Complete marks messageID as processed.
func (d *Deduplicator) Complete(ctx context.Context, messageID string) error {
	err := completeScript.Run(ctx, d.client.UniversalClient, []string{d.key(messageID)},
		d.owner, dedupDoneValue, d.doneTTL.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to complete message")
	}
	return nil
}

// Release drops the claim so that a redelivery can be processed again.
func (d *Deduplicator) Release(ctx context.Context, messageID string) error {
	err := releaseScript.Run(ctx, d.client.UniversalClient, []string{d.key(messageID)}, d.owner).Err()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release message")
	}
	return nil
}

//Personal.AI order the ending
