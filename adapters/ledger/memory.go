package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

// MemoryLedger is an in-process certification ledger with the contract's
// write rules. It backs tests and the development server.
type MemoryLedger struct {
	mu       sync.RWMutex
	now      func() time.Time
	courses  []core.Course // index = token id - 1
	codes    map[string]uint64
	balances map[holding]*big.Int
	mints    map[holding]uint64
}

type holding struct {
	tokenID uint64
	holder  common.Address
}

var _ ports.Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger. A nil clock means time.Now.
func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{
		now:      now,
		codes:    make(map[string]uint64),
		balances: make(map[holding]*big.Int),
		mints:    make(map[holding]uint64),
	}
}

// CreateCourse registers a course and returns its token id.
func (m *MemoryLedger) CreateCourse(code, name, imageURI string, validityDuration uint64) (uint64, error) {
	switch {
	case code == "":
		return 0, errors.Wrap(core.ErrInvalidArgument, "Course code cannot be empty")
	case name == "":
		return 0, errors.Wrap(core.ErrInvalidArgument, "Course name cannot be empty")
	case imageURI == "":
		return 0, errors.Wrap(core.ErrInvalidArgument, "Image URI cannot be empty")
	case validityDuration == 0:
		return 0, errors.Wrap(core.ErrInvalidArgument, "Validity duration must be greater than zero")
	}
	if err := core.ValidateCourse(code, name, imageURI, validityDuration); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.codes[code]; ok {
		return 0, errors.Wrap(core.ErrInvalidArgument, "Course code already exists")
	}

	tokenID := uint64(len(m.courses)) + 1
	m.courses = append(m.courses, core.Course{
		TokenID:          tokenID,
		Code:             code,
		Name:             name,
		ImageURI:         imageURI,
		ValidityDuration: validityDuration,
		Exists:           true,
	})
	m.codes[code] = tokenID
	return tokenID, nil
}

// UpdateCourse edits the mutable course fields. The code never changes.
func (m *MemoryLedger) UpdateCourse(tokenID uint64, name, imageURI string, validityDuration uint64) error {
	switch {
	case name == "":
		return errors.Wrap(core.ErrInvalidArgument, "Course name cannot be empty")
	case imageURI == "":
		return errors.Wrap(core.ErrInvalidArgument, "Image URI cannot be empty")
	case validityDuration == 0:
		return errors.Wrap(core.ErrInvalidArgument, "Validity duration must be greater than zero")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.course(tokenID)
	if err != nil {
		return err
	}
	if err := core.ValidateCourse(c.Code, name, imageURI, validityDuration); err != nil {
		return err
	}
	c.Name = name
	c.ImageURI = imageURI
	c.ValidityDuration = validityDuration
	return nil
}

// Mint issues one certificate of tokenID to to and refreshes its mint time.
func (m *MemoryLedger) Mint(to common.Address, tokenID uint64) error {
	return m.BatchMint([]common.Address{to}, tokenID)
}

// BatchMint issues one certificate to every recipient.
func (m *MemoryLedger) BatchMint(recipients []common.Address, tokenID uint64) error {
	if len(recipients) == 0 {
		return errors.Wrap(core.ErrInvalidArgument, "Recipients array cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.course(tokenID); err != nil {
		return err
	}
	for _, to := range recipients {
		if to == (common.Address{}) {
			return errors.Wrap(core.ErrInvalidArgument, "Cannot mint to zero address")
		}
	}

	now := uint64(m.now().Unix())
	for _, to := range recipients {
		k := holding{tokenID: tokenID, holder: to}
		bal, ok := m.balances[k]
		if !ok {
			bal = new(big.Int)
		}
		m.balances[k] = new(big.Int).Add(bal, big.NewInt(1))
		m.mints[k] = now
	}
	return nil
}

// course must be called with the lock held.
func (m *MemoryLedger) course(tokenID uint64) (*core.Course, error) {
	if tokenID == 0 || tokenID > uint64(len(m.courses)) {
		return nil, errors.Wrapf(core.ErrCourseNotFound, "token %d", tokenID)
	}
	return &m.courses[tokenID-1], nil
}

// Course returns course metadata, or core.ErrCourseNotFound.
func (m *MemoryLedger) Course(ctx context.Context, tokenID uint64) (core.Course, error) {
	if err := ctx.Err(); err != nil {
		return core.Course{}, errors.Wrap(core.ErrLedgerUnavailable, err.Error())
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.course(tokenID)
	if err != nil {
		return core.Course{}, err
	}
	return *c, nil
}

// TotalCourses returns how many courses were created.
func (m *MemoryLedger) TotalCourses(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(core.ErrLedgerUnavailable, err.Error())
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.courses)), nil
}

// BalanceOf returns the holder's balance of tokenID.
func (m *MemoryLedger) BalanceOf(ctx context.Context, holder common.Address, tokenID uint64) (*big.Int, error) {
	h, err := m.holding(ctx, tokenID, holder)
	if err != nil {
		return nil, err
	}
	return h.Balance, nil
}

// MintTimestamp returns when tokenID was last minted to holder, 0 if never.
func (m *MemoryLedger) MintTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error) {
	h, err := m.holding(ctx, tokenID, holder)
	if err != nil {
		return 0, err
	}
	return h.MintTimestamp, nil
}

// ExpiryTimestamp returns mint time plus validity, 0 if never minted.
func (m *MemoryLedger) ExpiryTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error) {
	h, err := m.holding(ctx, tokenID, holder)
	if err != nil {
		return 0, err
	}
	return h.ExpiryTimestamp, nil
}

// IsValid reports whether holder has an unexpired certificate.
func (m *MemoryLedger) IsValid(ctx context.Context, tokenID uint64, holder common.Address) (bool, error) {
	h, err := m.holding(ctx, tokenID, holder)
	if err != nil {
		return false, err
	}
	return h.Valid, nil
}

// IsValidBatch checks IsValid for every holder, in input order.
func (m *MemoryLedger) IsValidBatch(ctx context.Context, tokenID uint64, holders []common.Address) ([]bool, error) {
	if len(holders) == 0 {
		return nil, errors.Wrap(core.ErrInvalidArgument, "holders must not be empty")
	}
	results := make([]bool, len(holders))
	for i, holder := range holders {
		h, err := m.holding(ctx, tokenID, holder)
		if err != nil {
			return nil, err
		}
		results[i] = h.Valid
	}
	return results, nil
}

// holding snapshots the derived state of one holder at ledger time.
func (m *MemoryLedger) holding(ctx context.Context, tokenID uint64, holder common.Address) (core.Holding, error) {
	if err := ctx.Err(); err != nil {
		return core.Holding{}, errors.Wrap(core.ErrLedgerUnavailable, err.Error())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.course(tokenID)
	if err != nil {
		return core.Holding{}, err
	}

	k := holding{tokenID: tokenID, holder: holder}
	balance := new(big.Int)
	if b, ok := m.balances[k]; ok {
		balance.Set(b)
	}
	mint := m.mints[k]
	expiry := core.ExpiryOf(mint, c.ValidityDuration)

	return core.Holding{
		TokenID:         tokenID,
		Holder:          holder,
		Balance:         balance,
		MintTimestamp:   mint,
		ExpiryTimestamp: expiry,
		Valid:           core.IsValidAt(balance, expiry, uint64(m.now().Unix())),
	}, nil
}
