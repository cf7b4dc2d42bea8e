package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"insurecalc-backend/models"
	"insurecalc-backend/service"
)

func newManualCmd(a *app) *cobra.Command {
	var amount, percentage, fixed float64

	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Split using a percentage or a fixed insurer amount",
		Example: `  insurecalc manual --amount 200 --percentage 80
  insurecalc manual --amount 200 --fixed 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.CalculateRequest{
				Mode:          models.ModeManual,
				InitialAmount: amount,
			}
			if cmd.Flags().Changed("percentage") {
				req.Coverage.Percentage = &percentage
			}
			if cmd.Flags().Changed("fixed") {
				req.Coverage.FixedAmount = &fixed
			}

			result, err := a.svc.Calculate(cmd.Context(), req)
			if err != nil {
				return userError(err)
			}
			printResult(cmd.OutOrStdout(), result, false)
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "initial amount in dollars")
	cmd.Flags().Float64Var(&percentage, "percentage", 0, "percentage covered by insurance (0-100)")
	cmd.Flags().Float64Var(&fixed, "fixed", 0, "fixed dollar amount paid by insurance")
	return cmd
}

func newAICmd(a *app) *cobra.Command {
	var (
		amount   float64
		terms    string
		apiKey   string
		remember bool
		showCode bool
	)

	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Split using natural-language insurance terms",
		Long: `Ask Gemini to turn the insurance terms into a calculation and run it
in a sandbox. The key falls back to the remembered key, then GEMINI_API_KEY.`,
		Example: `  insurecalc ai --amount 1500 --terms "80% coverage up to $1000, then 60%"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.svc.Calculate(cmd.Context(), service.CalculateRequest{
				Mode:          models.ModeAI,
				InitialAmount: amount,
				Coverage:      models.CoverageSpec{Terms: terms},
				APIKey:        apiKey,
				RememberKey:   remember,
			})
			if err != nil {
				return userError(err)
			}
			printResult(cmd.OutOrStdout(), result, showCode)
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "initial amount in dollars")
	cmd.Flags().StringVar(&terms, "terms", "", "insurance terms in plain language")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Google API key for this request")
	cmd.Flags().BoolVar(&remember, "remember", false, "remember --api-key for later calculations")
	cmd.Flags().BoolVar(&showCode, "show-code", false, "print the generated calculation code")
	return cmd
}

func printResult(w io.Writer, result *service.CalculateResult, showCode bool) {
	fmt.Fprintf(w, "Initial amount: %s\n", models.FormatDollars(result.InitialAmount))
	fmt.Fprintf(w, "Insurance pays: %s\n", models.FormatDollars(result.Split.InsuranceAmount))
	fmt.Fprintf(w, "Patient pays:   %s\n", models.FormatDollars(result.Split.PatientAmount))
	if result.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", result.Explanation)
	}
	if showCode && result.Code != nil {
		fmt.Fprintf(w, "\n%s\n", result.Code.Source)
	}
}
