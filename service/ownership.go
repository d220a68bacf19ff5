package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultMaxSkew      = 30 * time.Second
	DefaultProofTTL     = 24 * time.Hour

	// replayRetention bounds single-use bookkeeping when the challenge TTL is disabled
	replayRetention = 24 * time.Hour
)

// VerifyRequest is a signed challenge submitted for verification
type VerifyRequest struct {
	Message   string // Challenge text that was signed
	Signature string // 0x-prefixed 65-byte signature
	Address   string // Address claiming ownership
	TokenID   uint64 // Certificate token id
}

// ProofStatus is a shareable proof re-checked against the ledger
type ProofStatus struct {
	Valid     bool
	Address   string
	TokenID   uint64
	Contract  string
	ExpiresAt time.Time
}

// OwnershipService decides whether an address holds a certificate
type OwnershipService struct {
	ledger   ports.Ledger
	verifier ports.SignatureVerifier
	contract string

	challenges   *ChallengeGenerator
	challengeTTL time.Duration
	maxSkew      time.Duration
	replay       ports.ReplayGuard

	tokenizer ports.ProofTokenizer
	proofTTL  time.Duration

	events  ports.EventPublisher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// OwnershipOption configures an OwnershipService
type OwnershipOption func(*OwnershipService)

// WithChallengeTTL sets how long a challenge may be submitted. Zero disables expiry.
func WithChallengeTTL(ttl time.Duration) OwnershipOption {
	return func(s *OwnershipService) { s.challengeTTL = ttl }
}

// WithMaxSkew sets how far in the future a challenge timestamp may be.
func WithMaxSkew(skew time.Duration) OwnershipOption {
	return func(s *OwnershipService) { s.maxSkew = skew }
}

// WithReplayGuard makes every signed challenge single-use.
func WithReplayGuard(guard ports.ReplayGuard) OwnershipOption {
	return func(s *OwnershipService) { s.replay = guard }
}

// WithProofs attaches a shareable proof to successful verdicts.
func WithProofs(tokenizer ports.ProofTokenizer, ttl time.Duration) OwnershipOption {
	return func(s *OwnershipService) {
		s.tokenizer = tokenizer
		if ttl > 0 {
			s.proofTTL = ttl
		}
	}
}

// WithEvents publishes every finished verification.
func WithEvents(events ports.EventPublisher) OwnershipOption {
	return func(s *OwnershipService) { s.events = events }
}

// WithMetrics records verdicts and issued proofs.
func WithMetrics(m *Metrics) OwnershipOption {
	return func(s *OwnershipService) { s.metrics = m }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) OwnershipOption {
	return func(s *OwnershipService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for challenges, expiry checks and proofs.
func WithClock(now func() time.Time) OwnershipOption {
	return func(s *OwnershipService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewOwnershipService creates the decision engine for certificates of the
// certification contract at contract.
func NewOwnershipService(ledger ports.Ledger, verifier ports.SignatureVerifier, contract string, opts ...OwnershipOption) *OwnershipService {
	s := &OwnershipService{
		ledger:       ledger,
		verifier:     verifier,
		contract:     contract,
		challengeTTL: DefaultChallengeTTL,
		maxSkew:      DefaultMaxSkew,
		proofTTL:     DefaultProofTTL,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.challenges = NewChallengeGenerator(s.now)
	return s
}

// Contract returns the certification contract address verdicts refer to.
func (s *OwnershipService) Contract() string {
	return s.contract
}

// Challenge generates a message for tokenID at the configured contract.
func (s *OwnershipService) Challenge(tokenID uint64) (string, error) {
	return s.challenges.Generate(tokenID, s.contract)
}

// ChallengeFor generates a message for tokenID at a caller-supplied
// contract. An empty contract means the configured one.
func (s *OwnershipService) ChallengeFor(tokenID uint64, contract string) (string, error) {
	if contract == "" {
		contract = s.contract
	}
	return s.challenges.Generate(tokenID, contract)
}

// Verify decides ownership for a signed challenge. Every failure is reported
// through the verdict.
func (s *OwnershipService) Verify(ctx context.Context, req VerifyRequest) core.Verdict {
	verdict := s.verify(ctx, req)
	s.record(ctx, req.Address, verdict)
	return verdict
}

func (s *OwnershipService) verify(ctx context.Context, req VerifyRequest) (verdict core.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("verification panicked", zap.Any("panic", r), zap.Uint64("token_id", req.TokenID))
			verdict = core.Failed(core.ReasonUnknown, req.TokenID, errors.Errorf("internal error: %v", r))
		}
	}()

	holder, err := s.validate(req)
	if err != nil {
		return core.Failed(core.ReasonInvalidArgument, req.TokenID, err)
	}

	challenge, err := core.ParseChallenge(req.Message)
	if err != nil || !challenge.BoundTo(req.TokenID, s.contract) {
		s.logger.Debug("challenge not bound to request",
			zap.Uint64("token_id", req.TokenID), zap.String("contract", s.contract), zap.Error(err))
		return core.Failed(core.ReasonInvalidSignature, req.TokenID, nil)
	}

	sig, err := eth.DecodeSignature(req.Signature)
	if err != nil {
		s.logger.Debug("malformed signature", zap.Uint64("token_id", req.TokenID), zap.Error(err))
		return core.Failed(core.ReasonInvalidSignature, req.TokenID, nil)
	}

	ok, err := s.verifier.Verify(ctx, req.Message, sig, holder)
	if err != nil {
		return s.failed(req.TokenID, err)
	}
	if !ok {
		return core.Failed(core.ReasonInvalidSignature, req.TokenID, nil)
	}

	if err := s.checkFreshness(challenge); err != nil {
		return s.failed(req.TokenID, err)
	}

	if s.replay != nil {
		fresh, err := s.replay.Consume(ctx, replayKey(holder, req.Message), s.replayTTL())
		if err != nil {
			return s.failed(req.TokenID, err)
		}
		if !fresh {
			return core.Failed(core.ReasonChallengeReused, req.TokenID, nil)
		}
	}

	balance, err := s.ledger.BalanceOf(ctx, holder, req.TokenID)
	if err != nil {
		return s.failed(req.TokenID, err)
	}
	if balance == nil || balance.Sign() <= 0 {
		return core.Failed(core.ReasonNotOwner, req.TokenID, nil)
	}

	verdict = core.Verified(holder.Hex(), req.TokenID)
	if s.tokenizer != nil {
		proof, err := s.issueProof(ctx, holder, req.TokenID)
		if err != nil {
			s.logger.Warn("failed to issue proof", zap.String("address", verdict.Address), zap.Uint64("token_id", req.TokenID), zap.Error(err))
		}
		verdict.Proof = proof
	}
	return verdict
}

func (s *OwnershipService) validate(req VerifyRequest) (common.Address, error) {
	holder, err := eth.ParseAddress(req.Address)
	if err != nil {
		return common.Address{}, err
	}
	if req.TokenID == 0 {
		return common.Address{}, errors.Wrap(core.ErrInvalidArgument, "token id must be positive")
	}
	if req.Message == "" {
		return common.Address{}, errors.Wrap(core.ErrInvalidArgument, "message is required")
	}
	return holder, nil
}

func (s *OwnershipService) failed(tokenID uint64, err error) core.Verdict {
	reason := core.ReasonFor(err)
	if reason == core.ReasonUnknown {
		s.logger.Error("unexpected verification error", zap.Uint64("token_id", tokenID), zap.Error(err))
	}
	return core.Failed(reason, tokenID, err)
}

func (s *OwnershipService) checkFreshness(c core.Challenge) error {
	now := s.now()
	if c.IssuedAt.After(now.Add(s.maxSkew)) {
		return errors.Wrapf(core.ErrChallengeExpired, "issued %s in the future", c.IssuedAt.Sub(now))
	}
	if s.challengeTTL > 0 && now.Sub(c.IssuedAt) > s.challengeTTL {
		return errors.Wrapf(core.ErrChallengeExpired, "issued %s ago", now.Sub(c.IssuedAt).Truncate(time.Second))
	}
	return nil
}

func (s *OwnershipService) replayTTL() time.Duration {
	if s.challengeTTL <= 0 {
		return replayRetention
	}
	return s.challengeTTL + s.maxSkew
}

// replayKey identifies a challenge per signer. Signatures are malleable, so
// the key is derived from the signed content instead.
func replayKey(holder common.Address, message string) string {
	return crypto.Keccak256Hash(holder.Bytes(), []byte(message)).Hex()
}

// issueProof signs a proof that expires with the certificate at the latest.
// Expired certificates get no proof.
func (s *OwnershipService) issueProof(ctx context.Context, holder common.Address, tokenID uint64) (string, error) {
	expiry, err := s.ledger.ExpiryTimestamp(ctx, tokenID, holder)
	if err != nil {
		return "", err
	}

	now := s.now()
	expiresAt := now.Add(s.proofTTL)
	if certExpiry := time.Unix(int64(expiry), 0); certExpiry.Before(expiresAt) {
		expiresAt = certExpiry
	}
	if !expiresAt.After(now) {
		return "", nil
	}

	token, err := s.tokenizer.ProofToToken(&ports.ProofClaims{
		ID:        uuid.NewString(),
		Address:   holder.Hex(),
		TokenID:   tokenID,
		Contract:  s.contract,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", err
	}
	s.metrics.observeProof()
	return token, nil
}

// CheckProof verifies a proof token and re-checks the certificate live.
func (s *OwnershipService) CheckProof(ctx context.Context, token string) (ProofStatus, error) {
	if s.tokenizer == nil {
		return ProofStatus{}, errors.Wrap(core.ErrInvalidProof, "proofs are disabled")
	}
	claims, err := s.tokenizer.TokenToProof(token)
	if err != nil {
		return ProofStatus{}, err
	}
	if !eth.SameAddress(claims.Contract, s.contract) {
		return ProofStatus{}, errors.Wrapf(core.ErrInvalidProof, "proof is for contract %s", claims.Contract)
	}
	holder, err := eth.ParseAddress(claims.Address)
	if err != nil {
		return ProofStatus{}, errors.Wrap(core.ErrInvalidProof, err.Error())
	}

	valid, err := s.ledger.IsValid(ctx, claims.TokenID, holder)
	if err != nil {
		return ProofStatus{}, err
	}
	return ProofStatus{
		Valid:     valid,
		Address:   holder.Hex(),
		TokenID:   claims.TokenID,
		Contract:  claims.Contract,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (s *OwnershipService) record(ctx context.Context, claimed string, verdict core.Verdict) {
	s.metrics.observeVerdict(verdict)

	fields := []zap.Field{
		zap.String("claimed", claimed),
		zap.Uint64("token_id", verdict.TokenID),
		zap.String("state", string(verdict.State)),
	}
	if verdict.Success() {
		s.logger.Info("ownership verified", fields...)
	} else {
		s.logger.Info("ownership not verified", append(fields, zap.String("reason", string(verdict.Reason)))...)
	}

	if s.events == nil {
		return
	}
	if err := s.events.PublishVerification(ctx, claimed, verdict); err != nil {
		s.logger.Warn("failed to publish verification event", zap.Error(err))
	}
}

// String renders a status line for CLI output.
func (p ProofStatus) String() string {
	return fmt.Sprintf("proof for %s token #%d at %s valid=%t expires=%s",
		p.Address, p.TokenID, p.Contract, p.Valid, p.ExpiresAt.UTC().Format(time.RFC3339))
}
