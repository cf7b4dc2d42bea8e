// Package calculator computes insurance/patient splits and checks the
// invariants every split must satisfy, whichever path produced it.
package calculator

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"insurecalc-backend/models"
)

const (
	// MaxAmount bounds initial and fixed amounts. It is a configuration limit, not a domain rule.
	MaxAmount = 1_000_000_000

	// SumTolerance is the absolute slack allowed when two independent expressions produce the split.
	SumTolerance = 0.01

	// MaxTermsLength caps natural-language terms in characters.
	MaxTermsLength = 1000
)

// ValidateInitialAmount checks the preconditions shared by both calculation paths.
func ValidateInitialAmount(initialAmount float64) error {
	if math.IsNaN(initialAmount) || math.IsInf(initialAmount, 0) || initialAmount <= 0 {
		return ErrInvalidInitialAmount
	}
	if initialAmount > MaxAmount {
		return ErrInitialAmountTooLarge
	}
	return nil
}

// ValidateTerms checks natural-language terms and returns them trimmed.
func ValidateTerms(terms string) (string, error) {
	trimmed := strings.TrimSpace(terms)
	if trimmed == "" {
		return "", ErrMissingTerms
	}
	if utf8.RuneCountInString(trimmed) > MaxTermsLength {
		return "", ErrTermsTooLong
	}
	return trimmed, nil
}

// Compute produces a split for the manual coverage variants.
//
// Percentage: insurance = initial * p / 100
// FixedAmount: insurance = a
// patient = initial - insurance, so the sum holds exactly.
func Compute(initialAmount float64, spec models.CoverageSpec) (models.AmountSplit, error) {
	if err := ValidateInitialAmount(initialAmount); err != nil {
		return models.AmountSplit{}, err
	}

	hasPercentage := spec.Percentage != nil
	hasFixed := spec.FixedAmount != nil

	if !hasPercentage && !hasFixed {
		if strings.TrimSpace(spec.Terms) != "" {
			return models.AmountSplit{}, ErrNaturalLanguageDelegated
		}
		return models.AmountSplit{}, ErrMissingInput
	}

	// each supplied field is range-checked before the pair is rejected
	if hasPercentage {
		if p := *spec.Percentage; math.IsNaN(p) || p < 0 || p > 100 {
			return models.AmountSplit{}, ErrInvalidPercentage
		}
	}
	if hasFixed {
		a := *spec.FixedAmount
		if math.IsNaN(a) || a < 0 {
			return models.AmountSplit{}, ErrInvalidFixedAmount
		}
		if a > MaxAmount {
			return models.AmountSplit{}, ErrFixedAmountTooLarge
		}
	}
	if hasPercentage && hasFixed {
		return models.AmountSplit{}, ErrAmbiguousInput
	}

	var insuranceAmount float64
	if hasPercentage {
		insuranceAmount = initialAmount * *spec.Percentage / 100
	} else {
		insuranceAmount = *spec.FixedAmount
	}

	if insuranceAmount > initialAmount {
		return models.AmountSplit{}, ErrCoverageExceedsInitial
	}

	return models.AmountSplit{
		InsuranceAmount: insuranceAmount,
		PatientAmount:   initialAmount - insuranceAmount,
	}, nil
}

// ValidateSplit is the acceptance gate for splits computed by generated code.
func ValidateSplit(initialAmount, insuranceAmount, patientAmount float64) error {
	if insuranceAmount < 0 || patientAmount < 0 {
		return ErrNegativeAmount
	}
	if diff := math.Abs(insuranceAmount + patientAmount - initialAmount); diff > SumTolerance {
		return fmt.Errorf("%w: off by %.4f", ErrSumMismatch, diff)
	}
	return nil
}
