package service

import (
	"context"
	"runtime"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultMaxCourses bounds how many courses a portfolio scan will visit.
const DefaultMaxCourses = 10000

// CertificateService answers read-only questions about courses and holdings
type CertificateService struct {
	ledger      ports.Ledger
	maxParallel int
	maxCourses  uint64
	logger      *zap.Logger
}

type CertificateOption func(*CertificateService)

// WithMaxCourses caps the course count a portfolio scan accepts from the
// ledger. Non-positive keeps DefaultMaxCourses.
func WithMaxCourses(n int) CertificateOption {
	return func(s *CertificateService) {
		if n > 0 {
			s.maxCourses = uint64(n)
		}
	}
}

// NewCertificateService creates the service. maxParallel bounds the
// portfolio scan; non-positive means GOMAXPROCS.
func NewCertificateService(ledger ports.Ledger, maxParallel int, logger *zap.Logger, opts ...CertificateOption) *CertificateService {
	if maxParallel <= 0 {
		maxParallel = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CertificateService{ledger: ledger, maxParallel: maxParallel, maxCourses: DefaultMaxCourses, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Course returns course metadata.
func (s *CertificateService) Course(ctx context.Context, tokenID uint64) (core.Course, error) {
	if tokenID == 0 {
		return core.Course{}, errors.Wrap(core.ErrInvalidArgument, "token id must be positive")
	}
	return s.ledger.Course(ctx, tokenID)
}

// Status returns the holder's balance, mint and expiry times and validity.
func (s *CertificateService) Status(ctx context.Context, tokenID uint64, address string) (core.Holding, error) {
	holder, err := eth.ParseAddress(address)
	if err != nil {
		return core.Holding{}, err
	}
	course, err := s.Course(ctx, tokenID)
	if err != nil {
		return core.Holding{}, err
	}
	h, err := s.holding(ctx, tokenID, holder)
	if err != nil {
		return core.Holding{}, err
	}
	h.Course = &course
	return h, nil
}

func (s *CertificateService) holding(ctx context.Context, tokenID uint64, holder common.Address) (core.Holding, error) {
	balance, err := s.ledger.BalanceOf(ctx, holder, tokenID)
	if err != nil {
		return core.Holding{}, err
	}
	mint, err := s.ledger.MintTimestamp(ctx, tokenID, holder)
	if err != nil {
		return core.Holding{}, err
	}
	expiry, err := s.ledger.ExpiryTimestamp(ctx, tokenID, holder)
	if err != nil {
		return core.Holding{}, err
	}
	valid, err := s.ledger.IsValid(ctx, tokenID, holder)
	if err != nil {
		return core.Holding{}, err
	}
	return core.Holding{
		TokenID:         tokenID,
		Holder:          holder,
		Balance:         balance,
		MintTimestamp:   mint,
		ExpiryTimestamp: expiry,
		Valid:           valid,
	}, nil
}

// ValidityBatch checks many holders of one course in a single ledger call.
func (s *CertificateService) ValidityBatch(ctx context.Context, tokenID uint64, addresses []string) ([]bool, error) {
	if tokenID == 0 {
		return nil, errors.Wrap(core.ErrInvalidArgument, "token id must be positive")
	}
	if len(addresses) == 0 {
		return nil, errors.Wrap(core.ErrInvalidArgument, "holders must not be empty")
	}
	holders, err := eth.ParseAddresses(addresses)
	if err != nil {
		return nil, err
	}
	return s.ledger.IsValidBatch(ctx, tokenID, holders)
}

// Portfolio lists every certificate the holder has, in token id order.
// Details are only read for courses with a positive balance.
func (s *CertificateService) Portfolio(ctx context.Context, address string) ([]core.Holding, error) {
	holder, err := eth.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	total, err := s.ledger.TotalCourses(ctx)
	if err != nil {
		return nil, err
	}
	if total > s.maxCourses {
		s.logger.Error("course count above limit", zap.Uint64("courses", total), zap.Uint64("limit", s.maxCourses))
		return nil, errors.Wrapf(core.ErrLedgerUnavailable, "ledger reports %d courses, limit is %d", total, s.maxCourses)
	}

	found := make([]*core.Holding, total)
	p := pool.New().
		WithMaxGoroutines(s.maxParallel).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i := uint64(0); i < total; i++ {
		tokenID := i + 1
		slot := &found[i]
		p.Go(func(ctx context.Context) error {
			balance, err := s.ledger.BalanceOf(ctx, holder, tokenID)
			if errors.Is(err, core.ErrCourseNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if balance.Sign() <= 0 {
				return nil
			}

			course, err := s.ledger.Course(ctx, tokenID)
			if err != nil {
				return err
			}
			h, err := s.holding(ctx, tokenID, holder)
			if err != nil {
				return err
			}
			h.Course = &course
			*slot = &h
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		s.logger.Warn("portfolio scan failed", zap.String("holder", holder.Hex()), zap.Uint64("courses", total), zap.Error(err))
		return nil, err
	}

	holdings := make([]core.Holding, 0, len(found))
	for _, h := range found {
		if h != nil {
			holdings = append(holdings, *h)
		}
	}
	return holdings, nil
}
