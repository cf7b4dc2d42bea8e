package service

import (
	"fmt"
	"strconv"
)

// BuildPrompt renders the generation prompt for one calculation. The model is
// asked for a Go function so the result can run in the sandbox unchanged.
func BuildPrompt(initialAmount float64, terms string) string {
	return fmt.Sprintf(promptTemplate, strconv.FormatFloat(initialAmount, 'f', -1, 64), strconv.Quote(terms))
}

const promptTemplate = `
You are an insurance calculator. Given an initial amount and insurance terms, generate Go code that calculates exactly how much insurance pays and how much the patient pays, along with a clear explanation.

Initial Amount: $%s
Insurance Terms: %s

IMPORTANT DEFINITIONS:
- "out-of-pocket expense" = what the PATIENT pays (patientAmount)
- "lowest out-of-pocket expense" = choose the option where the PATIENT pays the LEAST amount
- When terms say "whichever results in lowest out-of-pocket", calculate every option and pick the one where patientAmount is smallest

Generate BOTH:
1. A Go function that returns a map with "insuranceAmount", "patientAmount" and "explanation" keys
2. The function must be declared exactly as: func calculateInsurance(initialAmount float64) map[string]interface{}

Requirements:
- Return float64 values (not strings) for the amounts
- insuranceAmount + patientAmount must equal initialAmount
- Include a clear, step-by-step explanation string
- Handle complex scenarios like tiered coverage, copays, caps, and conditional logic
- For "either/or" scenarios, calculate BOTH options, show both calculations, and explain why one was chosen
- Do not write a package clause or import statements
- Only the math, strconv, strings and fmt packages are available
- No printing and no other side effects
- Declare only calculateInsurance: no helper functions, methods, function literals, recursion, goroutines or channels

Example scenarios:
1. "80%% coverage up to $1000, then 60%% coverage" - Apply 80%% to the first $1000, then 60%% to the remainder
2. "$20 copay and 20%% off the rest" - Patient pays $20 copay + 20%% of (initialAmount - 20)
3. "either 20%% reduction or $100 credit, whichever is lowest out-of-pocket" - Calculate both: (1) patient pays 80%% of initial, (2) patient pays (initial - 100), choose the option where the patient pays less

Example format:
func calculateInsurance(initialAmount float64) map[string]interface{} {
	// Your calculation logic here
	// For either/or scenarios, calculate both options and pick the one where the patient pays less

	explanation := "Step-by-step explanation of how the calculation was performed, including any decisions made for either/or scenarios"

	return map[string]interface{}{
		"insuranceAmount": insuranceAmount,
		"patientAmount":   patientAmount,
		"explanation":     explanation,
	}
}

Generate the complete function for the given insurance terms with a detailed explanation.`
