package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

// TopicVerification receives one message per finished verification
const TopicVerification = "certify.verification"

// VerificationEvent represents a finished ownership verification
type VerificationEvent struct {
	ID         string    `json:"id"`
	Claimed    string    `json:"claimed"`
	Address    string    `json:"address,omitempty"`
	TokenID    uint64    `json:"token_id"`
	State      string    `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     TopicVerification,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishVerification publishes a verification event
func (p *WatermillPublisher) PublishVerification(ctx context.Context, claimed string, verdict core.Verdict) error {
	event := VerificationEvent{
		ID:         uuid.NewString(),
		Claimed:    claimed,
		Address:    verdict.Address,
		TokenID:    verdict.TokenID,
		State:      string(verdict.State),
		Reason:     string(verdict.Reason),
		VerifiedAt: p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}

	return nil
}
