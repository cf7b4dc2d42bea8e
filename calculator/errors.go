package calculator

import "errors"

var (
	ErrInvalidInitialAmount     = errors.New("initial amount must be greater than 0")
	ErrInitialAmountTooLarge    = errors.New("initial amount exceeds the supported maximum")
	ErrMissingInput             = errors.New("either a percentage or a fixed amount is required")
	ErrAmbiguousInput           = errors.New("percentage and fixed amount cannot be combined in manual mode")
	ErrInvalidPercentage        = errors.New("percentage must be between 0 and 100")
	ErrInvalidFixedAmount       = errors.New("fixed amount must be 0 or greater")
	ErrFixedAmountTooLarge      = errors.New("fixed amount exceeds the supported maximum")
	ErrCoverageExceedsInitial   = errors.New("insurance coverage cannot exceed the initial amount")
	ErrNaturalLanguageDelegated = errors.New("natural-language coverage must be computed by the AI pipeline")
	ErrMissingTerms             = errors.New("insurance terms are required")
	ErrTermsTooLong             = errors.New("insurance terms exceed the maximum length")
	ErrNegativeAmount           = errors.New("calculated amounts cannot be negative")
	ErrSumMismatch              = errors.New("calculated amounts do not sum to the initial amount")
)
