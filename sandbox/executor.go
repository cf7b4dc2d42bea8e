// Package sandbox runs model-generated calculation code inside a yaegi
// interpreter that can only reach a small whitelist of stdlib packages.
//
// SAFETY RESTRICTIONS:
//   - Only math, strconv, strings and fmt symbols are exported to the snippet
//   - No os, net, syscall, unsafe or reflect access
//   - Interpreter output is discarded
//   - Execution is bounded by a context deadline
//   - Goroutines, channels, function literals, extra functions and
//     recursion are rejected before evaluation
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// FunctionName is the function every generated snippet must define.
const FunctionName = "calculateInsurance"

// DefaultTimeout bounds a single execution when the caller sets no deadline.
const DefaultTimeout = 2 * time.Second

var (
	ErrInvalidResultType  = errors.New("generated code did not return valid numeric amounts")
	ErrInvalidResultValue = errors.New("generated code returned invalid numbers")

	// ErrResultNotRecord is the ErrInvalidResultType case where the result is
	// not a map at all.
	ErrResultNotRecord = fmt.Errorf("%w: generated code did not return an object", ErrInvalidResultType)
)

// ExecutionFailedError wraps any failure raised while building or running the snippet.
type ExecutionFailedError struct {
	Message string
}

func (e *ExecutionFailedError) Error() string {
	return "failed to execute generated calculation code: " + e.Message
}

// Outcome is the validated result of a generated calculation
type Outcome struct {
	InsuranceAmount float64
	PatientAmount   float64
	Explanation     string
}

// allowedPackages maps importable paths to their yaegi symbol table keys.
var allowedPackages = map[string]string{
	"math":    "math/math",
	"strconv": "strconv/strconv",
	"strings": "strings/strings",
	"fmt":     "fmt/fmt",
}

var (
	importPattern    = regexp.MustCompile(`(?m)^\s*import\b`)
	packageSelectors = map[string]*regexp.Regexp{}
)

func init() {
	for pkg := range allowedPackages {
		packageSelectors[pkg] = regexp.MustCompile(`\b` + pkg + `\.`)
	}
}

// Executor builds a fresh interpreter per call
type Executor struct {
	timeout time.Duration
}

// ExecutorOption is a functional option for Executor
type ExecutorOption func(*Executor)

// WithTimeout sets the execution deadline applied when the context has none
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates a new sandbox executor
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute evaluates code, invokes calculateInsurance(initialAmount) and
// validates the shape of what it returns.
func (e *Executor) Execute(ctx context.Context, code string, initialAmount float64) (out Outcome, err error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionFailedError{Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if importPattern.MatchString(code) {
		return Outcome{}, &ExecutionFailedError{Message: "import statements are not allowed"}
	}
	if err := checkSnippet(code); err != nil {
		return Outcome{}, err
	}

	i := interp.New(interp.Options{
		Stdout: io.Discard,
		Stderr: io.Discard,
	})

	used := referencedPackages(code)
	exports := interp.Exports{}
	for _, pkg := range used {
		key := allowedPackages[pkg]
		exports[key] = stdlib.Symbols[key]
	}
	if err := i.Use(exports); err != nil {
		return Outcome{}, &ExecutionFailedError{Message: fmt.Sprintf("failed to load symbols: %v", err)}
	}

	for _, pkg := range used {
		if _, err := i.EvalWithContext(ctx, "import "+strconv.Quote(pkg)); err != nil {
			return Outcome{}, &ExecutionFailedError{Message: err.Error()}
		}
	}

	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return Outcome{}, &ExecutionFailedError{Message: err.Error()}
	}

	call := fmt.Sprintf("%s(%s)", FunctionName, strconv.FormatFloat(initialAmount, 'f', -1, 64))
	res, err := i.EvalWithContext(ctx, call)
	if err != nil {
		return Outcome{}, &ExecutionFailedError{Message: err.Error()}
	}

	out, err = validateResult(res)
	if err != nil {
		slog.Debug("Generated code result rejected", "error", err)
		return Outcome{}, err
	}
	return out, nil
}

// referencedPackages returns the whitelisted packages a snippet refers to, sorted.
func referencedPackages(code string) []string {
	var pkgs []string
	for pkg, re := range packageSelectors {
		if re.MatchString(code) {
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// validateResult checks, in order: structured record, numeric amounts, no NaN.
func validateResult(res reflect.Value) (Outcome, error) {
	v := unwrap(res)
	if !v.IsValid() || v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String || v.IsNil() {
		return Outcome{}, ErrResultNotRecord
	}

	insurance, ok := numberField(v, "insuranceAmount")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: insuranceAmount", ErrInvalidResultType)
	}
	patient, ok := numberField(v, "patientAmount")
	if !ok {
		return Outcome{}, fmt.Errorf("%w: patientAmount", ErrInvalidResultType)
	}
	if math.IsNaN(insurance) || math.IsNaN(patient) {
		return Outcome{}, ErrInvalidResultValue
	}

	var explanation string
	if ev := unwrap(v.MapIndex(reflect.ValueOf("explanation").Convert(v.Type().Key()))); ev.IsValid() && ev.Kind() == reflect.String {
		explanation = ev.String()
	}

	return Outcome{
		InsuranceAmount: insurance,
		PatientAmount:   patient,
		Explanation:     explanation,
	}, nil
}

func numberField(m reflect.Value, name string) (float64, bool) {
	fv := unwrap(m.MapIndex(reflect.ValueOf(name).Convert(m.Type().Key())))
	if !fv.IsValid() {
		return 0, false
	}
	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		return fv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(fv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(fv.Uint()), true
	default:
		return 0, false
	}
}

// unwrap strips interface and pointer indirection.
func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// IsExecutionFailure reports whether err came from building or running the snippet.
func IsExecutionFailure(err error) bool {
	var execErr *ExecutionFailedError
	return errors.As(err, &execErr)
}

// Summary trims an execution error message for logs.
func Summary(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
