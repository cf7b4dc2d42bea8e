package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculationMode selects which calculation path handles a request
type CalculationMode string

const (
	ModeManual CalculationMode = "manual"
	ModeAI     CalculationMode = "ai"
)

// AmountSplit represents how an initial amount is divided between insurer and patient
type AmountSplit struct {
	InsuranceAmount float64 `json:"insuranceAmount"`
	PatientAmount   float64 `json:"patientAmount"`
}

// CoverageSpec describes how a split is determined.
// Exactly one of Percentage, FixedAmount or Terms is expected to be set.
type CoverageSpec struct {
	Percentage  *float64 `json:"percentage,omitempty"`
	FixedAmount *float64 `json:"fixedAmount,omitempty"`
	Terms       string   `json:"terms,omitempty"`
}

// GeneratedCode holds the model-authored snippet for display only.
// It is never persisted or executed outside the sandbox.
type GeneratedCode struct {
	Source        string    `json:"source"`
	Terms         string    `json:"terms"`
	InitialAmount float64   `json:"initialAmount"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// RoundCents rounds a dollar amount to two decimal places
func RoundCents(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// FormatDollars renders an amount as "$1234.50"
func FormatDollars(amount float64) string {
	return "$" + decimal.NewFromFloat(amount).StringFixed(2)
}
