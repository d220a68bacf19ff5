package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/layer-3/certify/adapters/store"
	"github.com/layer-3/certify/adapters/tokenizer"
	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.UnixMilli(1700000000123)

func TestChallengeGenerator(t *testing.T) {
	clock := newFakeClock(start)
	g := NewChallengeGenerator(clock.Now)

	msg, err := g.Generate(5, testContract)
	require.NoError(t, err)
	assert.Contains(t, msg, "5")
	assert.Contains(t, msg, testContract)
	assert.Contains(t, msg, "Timestamp: 1700000000123")
	assert.True(t, strings.HasSuffix(msg, core.ChallengeDisclaimer))

	clock.Advance(time.Millisecond)
	next, err := g.Generate(5, testContract)
	require.NoError(t, err)
	assert.NotEqual(t, msg, next, "every call reads the clock")

	lower, err := g.Generate(5, strings.ToLower(testContract))
	require.NoError(t, err)
	assert.Contains(t, lower, strings.ToLower(testContract), "contract embedded as given")

	for _, tc := range []struct {
		tokenID  uint64
		contract string
	}{
		{0, testContract},
		{5, "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"},
		{5, "0x1234"},
		{5, ""},
	} {
		_, err := g.Generate(tc.tokenID, tc.contract)
		assert.True(t, errors.Is(err, core.ErrInvalidArgument), "%d %q", tc.tokenID, tc.contract)
	}
}

func TestVerify_Success(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()

	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)

	verdict := svc.Verify(context.Background(), VerifyRequest{
		Message:   msg,
		Signature: mustSign(t, f.owner, msg),
		Address:   strings.ToLower(ownerAddr),
		TokenID:   f.course,
	})
	assert.True(t, verdict.Success())
	assert.Equal(t, core.StateVerified, verdict.State)
	assert.Equal(t, ownerAddr, verdict.Address, "address normalized to checksum form")
	assert.Equal(t, f.course, verdict.TokenID)
	assert.Empty(t, verdict.Proof)
}

func TestVerify_ReplayWithinTTL(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	req := VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course}
	ctx := context.Background()

	assert.True(t, svc.Verify(ctx, req).Success(), "at T")
	f.clock.Advance(time.Second)
	assert.True(t, svc.Verify(ctx, req).Success(), "at T+1s")

	f.clock.Advance(3599 * time.Second)
	verdict := svc.Verify(ctx, req)
	assert.Equal(t, core.ReasonChallengeExpired, verdict.Reason, "at T+3600s")
	assert.Equal(t, "Challenge expired", verdict.Message)

	unlimited := f.service(WithChallengeTTL(0))
	assert.True(t, unlimited.Verify(ctx, req).Success(), "TTL disabled")
}

func TestVerify_FutureChallenge(t *testing.T) {
	f := newFixture(t, start)
	future := core.Challenge{TokenID: f.course, Contract: testContract, IssuedAt: start.Add(time.Hour)}.Text()
	svc := f.service()

	verdict := svc.Verify(context.Background(), VerifyRequest{
		Message: future, Signature: mustSign(t, f.owner, future), Address: ownerAddr, TokenID: f.course,
	})
	assert.Equal(t, core.ReasonChallengeExpired, verdict.Reason)

	skewed := core.Challenge{TokenID: f.course, Contract: testContract, IssuedAt: start.Add(10 * time.Second)}.Text()
	verdict = svc.Verify(context.Background(), VerifyRequest{
		Message: skewed, Signature: mustSign(t, f.owner, skewed), Address: ownerAddr, TokenID: f.course,
	})
	assert.True(t, verdict.Success(), "within allowed skew")
}

func TestVerify_AddressBinding(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	stranger := mustSigner(t, strangerKey)
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)

	// stranger signs but claims the owner's address
	verdict := svc.Verify(context.Background(), VerifyRequest{
		Message: msg, Signature: mustSign(t, stranger, msg), Address: ownerAddr, TokenID: f.course,
	})
	assert.Equal(t, core.StateFailed, verdict.State)
	assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason)
	assert.Equal(t, "Invalid signature", verdict.Message)
}

func TestVerify_TokenAndContractBinding(t *testing.T) {
	f := newFixture(t, start)
	other, err := f.ledger.CreateCourse("VUE-101", "Vue Developer Certification", "ipfs://vue-101", oneYear)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Mint(f.owner.Address(), other))
	svc := f.service()
	ctx := context.Background()

	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	verdict := svc.Verify(ctx, VerifyRequest{
		Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: other,
	})
	assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason, "challenge for a different token")

	foreign := core.Challenge{TokenID: f.course, Contract: "0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", IssuedAt: start}.Text()
	verdict = svc.Verify(ctx, VerifyRequest{
		Message: foreign, Signature: mustSign(t, f.owner, foreign), Address: ownerAddr, TokenID: f.course,
	})
	assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason, "challenge for a different contract")

	verdict = svc.Verify(ctx, VerifyRequest{
		Message: "hello", Signature: mustSign(t, f.owner, "hello"), Address: ownerAddr, TokenID: f.course,
	})
	assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason, "not a challenge")
}

func TestVerify_NotOwner(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	stranger := mustSigner(t, strangerKey)
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)

	verdict := svc.Verify(context.Background(), VerifyRequest{
		Message: msg, Signature: mustSign(t, stranger, msg), Address: stranger.Address().Hex(), TokenID: f.course,
	})
	assert.Equal(t, core.ReasonNotOwner, verdict.Reason)
	assert.Equal(t, "You don't own this certificate", verdict.Message)
	assert.Empty(t, verdict.Address)
}

func TestVerify_CourseNotFound(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	msg, err := svc.Challenge(42)
	require.NoError(t, err)

	verdict := svc.Verify(context.Background(), VerifyRequest{
		Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: 42,
	})
	assert.Equal(t, core.ReasonCourseNotFound, verdict.Reason)
	assert.Equal(t, "Course does not exist", verdict.Message)
}

func TestVerify_LedgerFailures(t *testing.T) {
	clock := newFakeClock(start)
	owner := mustSigner(t, ownerKey)
	g := NewChallengeGenerator(clock.Now)
	msg, err := g.Generate(1, testContract)
	require.NoError(t, err)
	req := VerifyRequest{Message: msg, Signature: mustSign(t, owner, msg), Address: ownerAddr, TokenID: 1}

	tests := []struct {
		name    string
		ledger  stubLedger
		reason  core.Reason
		message string
	}{
		{"unavailable", stubLedger{err: errors.Wrap(core.ErrLedgerUnavailable, "dial tcp: i/o timeout")}, core.ReasonNetworkError, "Network error. Please try again."},
		{"unexpected", stubLedger{err: errors.New("abi: cannot unmarshal")}, core.ReasonUnknown, "abi: cannot unmarshal"},
		{"panic", stubLedger{}, core.ReasonUnknown, "internal error: ledger exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewOwnershipService(tt.ledger, signatureVerifier(), testContract, WithClock(clock.Now))
			verdict := svc.Verify(context.Background(), req)
			assert.Equal(t, core.StateFailed, verdict.State)
			assert.Equal(t, tt.reason, verdict.Reason)
			assert.Equal(t, tt.message, verdict.Message)
		})
	}
}

func TestVerify_InvalidArguments(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	sig := mustSign(t, f.owner, msg)

	tests := []struct {
		name    string
		req     VerifyRequest
		message string
	}{
		{"address without prefix", VerifyRequest{Message: msg, Signature: sig, Address: ownerAddr[2:], TokenID: f.course}, fmt.Sprintf("address %q must be 0x-prefixed", ownerAddr[2:])},
		{"short address", VerifyRequest{Message: msg, Signature: sig, Address: "0x1234", TokenID: f.course}, `address "0x1234" is not a valid address`},
		{"zero token", VerifyRequest{Message: msg, Signature: sig, Address: ownerAddr, TokenID: 0}, "token id must be positive"},
		{"empty message", VerifyRequest{Message: "", Signature: sig, Address: ownerAddr, TokenID: f.course}, "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := svc.Verify(context.Background(), tt.req)
			assert.Equal(t, core.StateFailed, verdict.State)
			assert.Equal(t, core.ReasonInvalidArgument, verdict.Reason)
			assert.Equal(t, tt.message, verdict.Message)
		})
	}
}

func TestVerify_MalformedSignature(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	sig := mustSign(t, f.owner, msg)

	tests := map[string]string{
		"non-hex":        "0xzz",
		"odd length":     "0xabc",
		"without prefix": sig[2:],
		"bare hex":       "deadbeef",
		"empty":          "",
		"truncated":      sig[:len(sig)-2],
	}
	for name, signature := range tests {
		t.Run(name, func(t *testing.T) {
			verdict := svc.Verify(context.Background(), VerifyRequest{Message: msg, Signature: signature, Address: ownerAddr, TokenID: f.course})
			assert.Equal(t, core.StateFailed, verdict.State)
			assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason)
			assert.Equal(t, "Invalid signature", verdict.Message)
		})
	}
}

func TestVerify_SingleUse(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service(WithReplayGuard(store.NewMemoryStore()))
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	req := VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course}

	assert.True(t, svc.Verify(context.Background(), req).Success())
	verdict := svc.Verify(context.Background(), req)
	assert.Equal(t, core.ReasonChallengeReused, verdict.Reason)
	assert.Equal(t, "Challenge already used", verdict.Message)

	// a fresh challenge is accepted again
	f.clock.Advance(time.Millisecond)
	msg, err = svc.Challenge(f.course)
	require.NoError(t, err)
	req = VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course}
	assert.True(t, svc.Verify(context.Background(), req).Success())
}

func TestVerify_ProofLifecycle(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	f := newFixture(t, now)
	tok, err := tokenizer.NewEphemeralJWTTokenizer()
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := f.service(WithProofs(tok, time.Hour), WithMetrics(metrics))
	ctx := context.Background()

	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	verdict := svc.Verify(ctx, VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course})
	require.True(t, verdict.Success())
	require.NotEmpty(t, verdict.Proof)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProofsIssued))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Verifications.WithLabelValues("verified", "")))

	status, err := svc.CheckProof(ctx, verdict.Proof)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.Equal(t, ownerAddr, status.Address)
	assert.Equal(t, f.course, status.TokenID)
	assert.WithinDuration(t, now.Add(time.Hour), status.ExpiresAt, time.Second)

	// the ledger moves past the certificate expiry while the proof is still signed
	f.clock.Advance(time.Duration(oneYear) * time.Second)
	status, err = svc.CheckProof(ctx, verdict.Proof)
	require.NoError(t, err)
	assert.False(t, status.Valid)

	_, err = svc.CheckProof(ctx, "garbage")
	assert.True(t, errors.Is(err, core.ErrInvalidProof))

	other := NewOwnershipService(f.ledger, signatureVerifier(), "0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", WithProofs(tok, time.Hour))
	_, err = other.CheckProof(ctx, verdict.Proof)
	assert.True(t, errors.Is(err, core.ErrInvalidProof), "proof for another contract")

	_, err = f.service().CheckProof(ctx, verdict.Proof)
	assert.True(t, errors.Is(err, core.ErrInvalidProof), "proofs disabled")
}

func TestVerify_NoProofForExpiredCertificate(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	f := newFixture(t, now.Add(-time.Duration(oneYear+10)*time.Second))
	f.clock.Advance(time.Duration(oneYear+10) * time.Second)
	tok, err := tokenizer.NewEphemeralJWTTokenizer()
	require.NoError(t, err)
	svc := f.service(WithProofs(tok, time.Hour))

	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)
	verdict := svc.Verify(context.Background(), VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course})
	assert.True(t, verdict.Success(), "ownership holds after expiry")
	assert.Empty(t, verdict.Proof)
}

func TestVerify_PublishesEvents(t *testing.T) {
	f := newFixture(t, start)
	events := &recordingPublisher{}
	svc := f.service(WithEvents(events))
	msg, err := svc.Challenge(f.course)
	require.NoError(t, err)

	svc.Verify(context.Background(), VerifyRequest{Message: msg, Signature: mustSign(t, f.owner, msg), Address: ownerAddr, TokenID: f.course})
	svc.Verify(context.Background(), VerifyRequest{Message: msg, Signature: "0x00", Address: ownerAddr, TokenID: f.course})

	require.Equal(t, 2, events.count())
	assert.Equal(t, core.StateVerified, events.verdicts[0].State)
	assert.Equal(t, core.StateFailed, events.verdicts[1].State)
}

func TestProve(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()

	verdict := svc.Prove(context.Background(), f.course, ownerAddr, f.owner)
	assert.True(t, verdict.Success())

	stranger := mustSigner(t, strangerKey)
	verdict = svc.Prove(context.Background(), f.course, stranger.Address().Hex(), stranger)
	assert.Equal(t, core.ReasonNotOwner, verdict.Reason)

	verdict = svc.Prove(context.Background(), f.course, ownerAddr, stranger)
	assert.Equal(t, core.ReasonInvalidSignature, verdict.Reason)

	verdict = svc.Prove(context.Background(), f.course, "not-an-address", f.owner)
	assert.Equal(t, core.ReasonInvalidArgument, verdict.Reason)
}

func TestFlow_States(t *testing.T) {
	f := newFixture(t, start)
	svc := f.service()
	signer := newWaitingSigner(f.owner)
	flow := svc.NewFlow()
	assert.Equal(t, core.StateIdle, flow.State())

	done := make(chan core.Verdict)
	go func() {
		done <- flow.Run(context.Background(), f.course, ownerAddr, signer)
	}()

	<-signer.started
	assert.Equal(t, core.StateVerifying, flow.State())
	close(signer.release)

	verdict := <-done
	assert.True(t, verdict.Success())
	assert.Equal(t, core.StateVerified, flow.State())
	assert.Equal(t, []core.State{core.StateIdle, core.StateVerifying, core.StateVerified}, flow.History())
}

func TestFlow_CancelWhileSigning(t *testing.T) {
	f := newFixture(t, start)
	events := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := f.service(WithEvents(events), WithMetrics(metrics))
	signer := newWaitingSigner(f.owner)
	flow := svc.NewFlow()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan core.Verdict)
	go func() {
		done <- flow.Run(ctx, f.course, ownerAddr, signer)
	}()

	<-signer.started
	cancel()

	verdict := <-done
	assert.Equal(t, core.StateIdle, verdict.State)
	assert.Equal(t, core.ReasonCanceled, verdict.Reason)
	assert.Equal(t, core.StateIdle, flow.State())
	assert.Zero(t, events.count(), "no side effects")
	assert.Zero(t, testutil.CollectAndCount(metrics.Verifications))
}
