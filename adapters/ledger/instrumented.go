package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedLedger records the latency and outcome of every ledger call
type InstrumentedLedger struct {
	next      ports.Ledger
	durations *prometheus.HistogramVec
}

var _ ports.Ledger = (*InstrumentedLedger)(nil)

// NewInstrumentedLedger wraps next. durations must have the labels
// "method" and "result".
func NewInstrumentedLedger(next ports.Ledger, durations *prometheus.HistogramVec) *InstrumentedLedger {
	return &InstrumentedLedger{next: next, durations: durations}
}

func (l *InstrumentedLedger) observe(method string, start time.Time, err error) {
	l.durations.WithLabelValues(method, resultLabel(err)).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrCourseNotFound):
		return "not_found"
	case errors.Is(err, core.ErrLedgerUnavailable):
		return "unavailable"
	case errors.Is(err, core.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}

func (l *InstrumentedLedger) Course(ctx context.Context, tokenID uint64) (c core.Course, err error) {
	defer func(start time.Time) { l.observe("course", start, err) }(time.Now())
	return l.next.Course(ctx, tokenID)
}

func (l *InstrumentedLedger) TotalCourses(ctx context.Context) (n uint64, err error) {
	defer func(start time.Time) { l.observe("total_courses", start, err) }(time.Now())
	return l.next.TotalCourses(ctx)
}

func (l *InstrumentedLedger) BalanceOf(ctx context.Context, holder common.Address, tokenID uint64) (b *big.Int, err error) {
	defer func(start time.Time) { l.observe("balance_of", start, err) }(time.Now())
	return l.next.BalanceOf(ctx, holder, tokenID)
}

func (l *InstrumentedLedger) MintTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (ts uint64, err error) {
	defer func(start time.Time) { l.observe("mint_timestamp", start, err) }(time.Now())
	return l.next.MintTimestamp(ctx, tokenID, holder)
}

func (l *InstrumentedLedger) ExpiryTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (ts uint64, err error) {
	defer func(start time.Time) { l.observe("expiry_timestamp", start, err) }(time.Now())
	return l.next.ExpiryTimestamp(ctx, tokenID, holder)
}

func (l *InstrumentedLedger) IsValid(ctx context.Context, tokenID uint64, holder common.Address) (ok bool, err error) {
	defer func(start time.Time) { l.observe("is_valid", start, err) }(time.Now())
	return l.next.IsValid(ctx, tokenID, holder)
}

func (l *InstrumentedLedger) IsValidBatch(ctx context.Context, tokenID uint64, holders []common.Address) (res []bool, err error) {
	defer func(start time.Time) { l.observe("is_valid_batch", start, err) }(time.Now())
	return l.next.IsValidBatch(ctx, tokenID, holders)
}
