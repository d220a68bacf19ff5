package core

import (
	"regexp"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	MinValidityDuration = 86400     // 1 day
	MaxValidityDuration = 315360000 // 10 years
	MaxBatchRecipients  = 100

	// SecondsPerMonth is an average Gregorian month
	SecondsPerMonth = 2629746
)

var courseCodeRe = regexp.MustCompile(`^[A-Z0-9_-]{2,20}$`)

// ValidateCourse checks admin input for a new or edited course.
func ValidateCourse(code, name, imageURI string, validityDuration uint64) error {
	if !courseCodeRe.MatchString(code) {
		return errors.Wrapf(ErrInvalidArgument, "course code %q must be 2-20 uppercase alphanumeric characters", code)
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return errors.Wrap(ErrInvalidArgument, "course name must be 2-100 characters")
	}
	if imageURI == "" {
		return errors.Wrap(ErrInvalidArgument, "image URI is required")
	}
	if validityDuration < MinValidityDuration || validityDuration > MaxValidityDuration {
		return errors.Wrapf(ErrInvalidArgument, "validity duration must be between %d and %d seconds", MinValidityDuration, MaxValidityDuration)
	}
	return nil
}

// ValidityMonths converts a validity duration to months rounded to one
// decimal place, e.g. 31536000 -> 12.0.
func ValidityMonths(validityDuration uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(validityDuration)).
		Div(decimal.NewFromInt(SecondsPerMonth)).
		Round(1)
}
