package ports

import (
	"context"

	"github.com/layer-3/certify/core"
)

// EventPublisher publishes verification outcomes to other services
type EventPublisher interface {
	// PublishVerification announces the verdict reached for the address
	// that asked to be verified.
	PublishVerification(ctx context.Context, claimed string, verdict core.Verdict) error
}
