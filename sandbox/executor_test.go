package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tieredCode = `func calculateInsurance(initialAmount float64) map[string]interface{} {
	first := math.Min(initialAmount, 1000)
	rest := math.Max(initialAmount-1000, 0)
	insurance := first*0.8 + rest*0.6
	patient := initialAmount - insurance
	explanation := "80% of the first $1000 (" + strconv.FormatFloat(first*0.8, 'f', 2, 64) + ") plus 60% of the remainder"
	return map[string]interface{}{
		"insuranceAmount": insurance,
		"patientAmount":   patient,
		"explanation":     explanation,
	}
}`

func TestExecute_TieredCoverage(t *testing.T) {
	e := NewExecutor()

	out, err := e.Execute(context.Background(), tieredCode, 1500)
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, out.InsuranceAmount, 1e-9)
	assert.InDelta(t, 400.0, out.PatientAmount, 1e-9)
	assert.Contains(t, out.Explanation, "800.00")
}

func TestExecute_CopayWithFmt(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	copay := 20.0
	patient := copay + 0.2*(initialAmount-copay)
	return map[string]interface{}{
		"insuranceAmount": initialAmount - patient,
		"patientAmount":   patient,
		"explanation":     fmt.Sprintf("$%.2f copay plus 20%% of the rest", copay),
	}
}`
	out, err := NewExecutor().Execute(context.Background(), code, 120)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, out.InsuranceAmount, 1e-9)
	assert.InDelta(t, 40.0, out.PatientAmount, 1e-9)
	assert.Equal(t, "$20.00 copay plus 20% of the rest", out.Explanation)
}

func TestExecute_IntegerAmountsAreNumeric(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": 60, "patientAmount": 40}
}`
	out, err := NewExecutor().Execute(context.Background(), code, 100)
	require.NoError(t, err)
	assert.Equal(t, 60.0, out.InsuranceAmount)
	assert.Equal(t, 40.0, out.PatientAmount)
	assert.Empty(t, out.Explanation)
}

func TestExecute_NegativeAmountPassesShapeChecks(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": -1.0, "patientAmount": 101.0, "explanation": "bogus"}
}`
	out, err := NewExecutor().Execute(context.Background(), code, 100)
	require.NoError(t, err)
	assert.Equal(t, -1.0, out.InsuranceAmount)
	assert.Equal(t, 101.0, out.PatientAmount)
}

func TestExecute_SyntaxError(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": initialAmount
}`
	_, err := NewExecutor().Execute(context.Background(), code, 100)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
}

func TestExecute_Panic(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	var m map[string]interface{}
	m["insuranceAmount"] = initialAmount
	return m
}`
	_, err := NewExecutor().Execute(context.Background(), code, 100)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
}

func TestExecute_WrongArity(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64, copay float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": initialAmount, "patientAmount": copay}
}`
	_, err := NewExecutor().Execute(context.Background(), code, 100)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
}

func TestExecute_ForbiddenImport(t *testing.T) {
	code := `import "os"

func calculateInsurance(initialAmount float64) map[string]interface{} {
	os.Exit(1)
	return nil
}`
	_, err := NewExecutor().Execute(context.Background(), code, 100)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
}

func TestExecute_UnexportedPackageIsUnreachable(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	_ = os.Getenv("HOME")
	return map[string]interface{}{"insuranceAmount": 1.0, "patientAmount": 2.0}
}`
	_, err := NewExecutor().Execute(context.Background(), code, 3)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
}

func TestExecute_Timeout(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	for {
	}
	return nil
}`
	e := NewExecutor(WithTimeout(200 * time.Millisecond))

	start := time.Now()
	_, err := e.Execute(context.Background(), code, 100)
	require.Error(t, err)
	assert.True(t, IsExecutionFailure(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecute_ResultShape(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "nil map",
			body:    `return nil`,
			wantErr: ErrInvalidResultType,
		},
		{
			name:    "missing patient amount",
			body:    `return map[string]interface{}{"insuranceAmount": 10.0}`,
			wantErr: ErrInvalidResultType,
		},
		{
			name:    "string amount",
			body:    `return map[string]interface{}{"insuranceAmount": "10", "patientAmount": 90.0}`,
			wantErr: ErrInvalidResultType,
		},
		{
			name:    "NaN amount",
			body:    `return map[string]interface{}{"insuranceAmount": math.NaN(), "patientAmount": 90.0}`,
			wantErr: ErrInvalidResultValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := "func calculateInsurance(initialAmount float64) map[string]interface{} {\n\t" + tt.body + "\n}"
			_, err := NewExecutor().Execute(context.Background(), code, 100)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecute_NonMapResult(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) float64 {
	return initialAmount
}`
	_, err := NewExecutor().Execute(context.Background(), code, 100)
	require.ErrorIs(t, err, ErrResultNotRecord)
	assert.ErrorIs(t, err, ErrInvalidResultType)

	code = "func calculateInsurance(initialAmount float64) map[string]interface{} {\n\treturn nil\n}"
	_, err = NewExecutor().Execute(context.Background(), code, 100)
	require.ErrorIs(t, err, ErrResultNotRecord)
}

func TestExecute_RejectsProcessKillingCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantText string
	}{
		{
			name: "panic in a goroutine",
			code: `func calculateInsurance(initialAmount float64) map[string]interface{} {
	go func() {
		var m map[string]int
		m["a"] = 1
	}()
	return map[string]interface{}{"insuranceAmount": initialAmount, "patientAmount": 0.0}
}`,
			wantText: "go statements are not allowed",
		},
		{
			name: "recursive helper",
			code: `func f(n float64) float64 { return f(n+1) + 1 }

func calculateInsurance(initialAmount float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": f(initialAmount), "patientAmount": 0.0}
}`,
			wantText: "only calculateInsurance may be declared, found f",
		},
		{
			name: "direct recursion",
			code: `func calculateInsurance(initialAmount float64) map[string]interface{} {
	return calculateInsurance(initialAmount + 1)
}`,
			wantText: "calculateInsurance may not call itself",
		},
		{
			name: "recursive closure",
			code: `func calculateInsurance(initialAmount float64) map[string]interface{} {
	var f func(float64) float64
	f = func(n float64) float64 { return f(n) + 1 }
	return map[string]interface{}{"insuranceAmount": f(initialAmount), "patientAmount": 0.0}
}`,
			wantText: "function literals are not allowed",
		},
		{
			name: "method declaration",
			code: `type rate float64

func (r rate) apply(n float64) float64 { return r.apply(n) }

func calculateInsurance(initialAmount float64) map[string]interface{} {
	return map[string]interface{}{"insuranceAmount": rate(1).apply(initialAmount), "patientAmount": 0.0}
}`,
			wantText: "only calculateInsurance may be declared, found apply",
		},
		{
			name: "blocking channel",
			code: `func calculateInsurance(initialAmount float64) map[string]interface{} {
	ch := make(chan float64)
	return map[string]interface{}{"insuranceAmount": <-ch, "patientAmount": 0.0}
}`,
			wantText: "channels are not allowed",
		},
		{
			name:     "missing entry point",
			code:     `const rate = 0.8`,
			wantText: "calculateInsurance is not declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecutor().Execute(context.Background(), tt.code, 100)
			require.Error(t, err)
			assert.True(t, IsExecutionFailure(err))
			assert.ErrorContains(t, err, tt.wantText)
		})
	}
}

func TestCheckSnippet_AllowsPlainCalculations(t *testing.T) {
	assert.NoError(t, checkSnippet(tieredCode))

	code := `const copay = 20.0

func calculateInsurance(initialAmount float64) map[string]interface{} {
	patient := math.Min(initialAmount, copay)
	for i := 0; i < 3; i++ {
		patient += 0
	}
	return map[string]interface{}{"insuranceAmount": initialAmount - patient, "patientAmount": patient}
}`
	assert.NoError(t, checkSnippet(code))
}

func TestCheckSnippet_ReportsSnippetLine(t *testing.T) {
	code := `func calculateInsurance(initialAmount float64) map[string]interface{} {
	go calculateTax()
	return nil
}`
	assert.ErrorContains(t, checkSnippet(code), "line 2: go statements are not allowed")
}

func TestReferencedPackages(t *testing.T) {
	assert.Equal(t, []string{"math", "strconv"}, referencedPackages(tieredCode))
	assert.Empty(t, referencedPackages("func calculateInsurance(x float64) {}"))
}
