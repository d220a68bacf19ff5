package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/adapters/ledger"
	"github.com/layer-3/certify/adapters/signature"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	ownerKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	ownerAddr    = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	strangerKey  = "0x8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
	oneYear      = uint64(31536000)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustSigner(t *testing.T, hexKey string) *eth.KeySigner {
	t.Helper()
	s, err := eth.NewKeySignerFromHex(hexKey)
	require.NoError(t, err)
	return s
}

func mustSign(t *testing.T, signer *eth.KeySigner, message string) string {
	t.Helper()
	sig, err := signer.SignMessage(context.Background(), message)
	require.NoError(t, err)
	return "0x" + common.Bytes2Hex(sig)
}

type fixture struct {
	clock  *fakeClock
	ledger *ledger.MemoryLedger
	owner  *eth.KeySigner
	course uint64
}

// newFixture creates a ledger with one one-year course minted to the owner
// at the clock's start time.
func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	clock := newFakeClock(start)
	mem := ledger.NewMemoryLedger(clock.Now)
	id, err := mem.CreateCourse("REACT-101", "React Developer Certification", "ipfs://react-101", oneYear)
	require.NoError(t, err)
	owner := mustSigner(t, ownerKey)
	require.NoError(t, mem.Mint(owner.Address(), id))
	return &fixture{clock: clock, ledger: mem, owner: owner, course: id}
}

func (f *fixture) service(opts ...OwnershipOption) *OwnershipService {
	opts = append([]OwnershipOption{WithClock(f.clock.Now)}, opts...)
	return NewOwnershipService(f.ledger, signature.NewVerifier(), testContract, opts...)
}

// stubLedger fails every call with err, or panics when err is nil
type stubLedger struct {
	err error
}

func (l stubLedger) fail() error {
	if l.err == nil {
		panic("ledger exploded")
	}
	return l.err
}

func (l stubLedger) Course(context.Context, uint64) (core.Course, error) {
	return core.Course{}, l.fail()
}
func (l stubLedger) TotalCourses(context.Context) (uint64, error) { return 0, l.fail() }
func (l stubLedger) BalanceOf(context.Context, common.Address, uint64) (*big.Int, error) {
	return nil, l.fail()
}
func (l stubLedger) MintTimestamp(context.Context, uint64, common.Address) (uint64, error) {
	return 0, l.fail()
}
func (l stubLedger) ExpiryTimestamp(context.Context, uint64, common.Address) (uint64, error) {
	return 0, l.fail()
}
func (l stubLedger) IsValid(context.Context, uint64, common.Address) (bool, error) {
	return false, l.fail()
}
func (l stubLedger) IsValidBatch(context.Context, uint64, []common.Address) ([]bool, error) {
	return nil, l.fail()
}

// recordingPublisher keeps every published verdict
type recordingPublisher struct {
	mu       sync.Mutex
	verdicts []core.Verdict
}

func (p *recordingPublisher) PublishVerification(_ context.Context, _ string, v core.Verdict) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verdicts = append(p.verdicts, v)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.verdicts)
}

// waitingSigner blocks until released or the context ends
type waitingSigner struct {
	inner   *eth.KeySigner
	started chan struct{}
	release chan struct{}
}

func newWaitingSigner(inner *eth.KeySigner) *waitingSigner {
	return &waitingSigner{inner: inner, started: make(chan struct{}), release: make(chan struct{})}
}

func (s *waitingSigner) SignMessage(ctx context.Context, message string) ([]byte, error) {
	close(s.started)
	select {
	case <-s.release:
		return s.inner.SignMessage(ctx, message)
	case <-ctx.Done():
		return nil, core.ErrSigningCanceled
	}
}

func signatureVerifier() *signature.Verifier {
	return signature.NewVerifier()
}
