package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"insurecalc-backend/calculator"
	"insurecalc-backend/gemini"
	"insurecalc-backend/sandbox"
)

var (
	ErrCalculationInProgress = errors.New("a calculation is already in progress")
	ErrMissingCredential     = errors.New("an API key is required for AI calculations")
	ErrInvalidMode           = errors.New("unknown calculation mode")
)

type errorDescription struct {
	code    string
	message string
	status  int
}

// userErrors lists the errors whose message is shown as is.
var userErrors = []struct {
	err  error
	desc errorDescription
}{
	{calculator.ErrInvalidInitialAmount, errorDescription{"INVALID_INITIAL_AMOUNT", "Please enter a valid initial amount greater than 0", http.StatusBadRequest}},
	{calculator.ErrInitialAmountTooLarge, errorDescription{"INITIAL_AMOUNT_TOO_LARGE", "Initial amount is too large. Please enter a reasonable amount.", http.StatusBadRequest}},
	{calculator.ErrMissingInput, errorDescription{"MISSING_INPUT", "Please enter either a percentage or dollar amount for insurance coverage", http.StatusBadRequest}},
	{calculator.ErrInvalidPercentage, errorDescription{"INVALID_PERCENTAGE", "Percentage must be between 0 and 100", http.StatusBadRequest}},
	{calculator.ErrInvalidFixedAmount, errorDescription{"INVALID_FIXED_AMOUNT", "Dollar amount must be 0 or greater", http.StatusBadRequest}},
	{calculator.ErrFixedAmountTooLarge, errorDescription{"FIXED_AMOUNT_TOO_LARGE", "Insurance amount is too large. Please enter a reasonable amount.", http.StatusBadRequest}},
	{calculator.ErrAmbiguousInput, errorDescription{"AMBIGUOUS_INPUT", "For combined percentage and amount calculations, please use AI mode", http.StatusBadRequest}},
	{calculator.ErrCoverageExceedsInitial, errorDescription{"COVERAGE_EXCEEDS_INITIAL", "Insurance coverage cannot exceed the initial amount", http.StatusBadRequest}},
	{calculator.ErrNaturalLanguageDelegated, errorDescription{"NATURAL_LANGUAGE_REQUIRES_AI", "Insurance terms can only be calculated in AI mode", http.StatusBadRequest}},
	{calculator.ErrMissingTerms, errorDescription{"MISSING_TERMS", "Please enter insurance terms for AI calculation", http.StatusBadRequest}},
	{calculator.ErrTermsTooLong, errorDescription{"TERMS_TOO_LONG", "Insurance terms are too long. Please keep under 1000 characters.", http.StatusBadRequest}},
	{ErrInvalidMode, errorDescription{"INVALID_MODE", "Please choose manual or AI mode", http.StatusBadRequest}},
	{ErrMissingCredential, errorDescription{"MISSING_API_KEY", "Please enter your Google API key to use AI calculations", http.StatusBadRequest}},
	{ErrCalculationInProgress, errorDescription{"CALCULATION_IN_PROGRESS", "A calculation is already in progress. Please wait for it to finish.", http.StatusConflict}},

	{gemini.ErrInvalidCredential, errorDescription{"INVALID_API_KEY", "Invalid API key. Please check your Google API key.", http.StatusUnauthorized}},
	{gemini.ErrPermissionDenied, errorDescription{"PERMISSION_DENIED", "API access denied. Please check your API key permissions.", http.StatusForbidden}},
	{gemini.ErrMalformedResponse, errorDescription{"MALFORMED_RESPONSE", "Invalid response format from API", http.StatusBadGateway}},
	{context.DeadlineExceeded, errorDescription{"UPSTREAM_TIMEOUT", "The AI service did not respond in time. Please try again.", http.StatusGatewayTimeout}},
	{gemini.ErrNetwork, errorDescription{"NETWORK_ERROR", "Network error. Please check your internet connection.", http.StatusBadGateway}},

	{ErrCodeExtractionFailed, errorDescription{"CODE_EXTRACTION_FAILED", "Could not extract valid Go code from AI response", http.StatusUnprocessableEntity}},
	{sandbox.ErrResultNotRecord, errorDescription{"INVALID_RESULT_TYPE", "Error executing calculation: Generated code did not return an object", http.StatusUnprocessableEntity}},
	{sandbox.ErrInvalidResultType, errorDescription{"INVALID_RESULT_TYPE", "Error executing calculation: Generated code did not return valid numeric amounts", http.StatusUnprocessableEntity}},
	{sandbox.ErrInvalidResultValue, errorDescription{"INVALID_RESULT_VALUE", "Error executing calculation: Generated code returned invalid numbers", http.StatusUnprocessableEntity}},
	{calculator.ErrNegativeAmount, errorDescription{"NEGATIVE_AMOUNT", "Invalid calculation result: amounts cannot be negative", http.StatusUnprocessableEntity}},
	{calculator.ErrSumMismatch, errorDescription{"SUM_MISMATCH", "Invalid calculation result: amounts do not sum to initial amount", http.StatusUnprocessableEntity}},
}

// Describe maps an error from Calculate onto a stable code, the message shown
// to the user and an HTTP status.
func Describe(err error) (code, message string, status int) {
	if err == nil {
		return "", "", http.StatusOK
	}

	for _, ue := range userErrors {
		if errors.Is(err, ue.err) {
			return ue.desc.code, ue.desc.message, ue.desc.status
		}
	}

	var reqErr *gemini.RequestFailedError
	if errors.As(err, &reqErr) {
		return "REQUEST_FAILED", fmt.Sprintf("API request failed with status %d", reqErr.Status), http.StatusBadGateway
	}

	// raw interpreter output stays in the logs
	if sandbox.IsExecutionFailure(err) {
		return "EXECUTION_FAILED", "Error executing calculation: Failed to execute generated calculation code", http.StatusUnprocessableEntity
	}

	return "INTERNAL_ERROR", "An error occurred during the calculation. Please try again.", http.StatusInternalServerError
}
