package models

// CalculationType records which path produced a history entry
type CalculationType string

const (
	CalculationManual CalculationType = "Manual"
	CalculationAI     CalculationType = "AI"
)

// HistoryEntry represents one successful calculation
type HistoryEntry struct {
	ID              int64           `json:"id"`
	Timestamp       string          `json:"timestamp"`
	InitialAmount   float64         `json:"initialAmount"`
	InsuranceAmount float64         `json:"insuranceAmount"`
	PatientAmount   float64         `json:"patientAmount"`
	Explanation     *string         `json:"explanation"`
	CalculationType CalculationType `json:"calculationType"`
}

// TimestampLayout mirrors the locale-style display string shown in the history list
const TimestampLayout = "1/2/2006, 3:04:05 PM"
