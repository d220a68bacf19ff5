package service

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Flow is one client-side ownership check: challenge, wallet signature,
// verification. Its state can be read while Run waits for the signer.
type Flow struct {
	svc *OwnershipService

	mu      sync.Mutex
	state   core.State
	history []core.State
}

// NewFlow creates a flow in the idle state.
func (s *OwnershipService) NewFlow() *Flow {
	return &Flow{svc: s, state: core.StateIdle, history: []core.State{core.StateIdle}}
}

// Prove runs a fresh flow to completion.
func (s *OwnershipService) Prove(ctx context.Context, tokenID uint64, address string, signer ports.Signer) core.Verdict {
	return s.NewFlow().Run(ctx, tokenID, address, signer)
}

// State returns the current state.
func (f *Flow) State() core.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns every state the flow has been in, oldest first.
func (f *Flow) History() []core.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.State(nil), f.history...)
}

func (f *Flow) set(state core.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.history = append(f.history, state)
}

// Run asks signer for a signature over a fresh challenge and verifies it.
// A canceled signature leaves the flow idle with nothing recorded.
func (f *Flow) Run(ctx context.Context, tokenID uint64, address string, signer ports.Signer) core.Verdict {
	f.set(core.StateVerifying)
	verdict := f.run(ctx, tokenID, address, signer)
	f.set(verdict.State)
	return verdict
}

func (f *Flow) run(ctx context.Context, tokenID uint64, address string, signer ports.Signer) core.Verdict {
	s := f.svc

	if _, err := eth.ParseAddress(address); err != nil {
		verdict := core.Failed(core.ReasonInvalidArgument, tokenID, err)
		s.record(ctx, address, verdict)
		return verdict
	}
	message, err := s.Challenge(tokenID)
	if err != nil {
		verdict := core.Failed(core.ReasonInvalidArgument, tokenID, err)
		s.record(ctx, address, verdict)
		return verdict
	}

	sig, err := signer.SignMessage(ctx, message)
	if err != nil {
		if errors.Is(err, core.ErrSigningCanceled) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			s.logger.Debug("signing canceled", zap.Uint64("token_id", tokenID), zap.String("address", address))
			return core.Canceled(tokenID)
		}
		verdict := core.Failed(core.ReasonFor(err), tokenID, err)
		s.record(ctx, address, verdict)
		return verdict
	}

	return s.Verify(ctx, VerifyRequest{
		Message:   message,
		Signature: hexutil.Encode(sig),
		Address:   address,
		TokenID:   tokenID,
	})
}
