package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"insurecalc-backend/models"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, delete or clear past calculations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List calculations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.svc.History(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No calculations yet")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tTYPE\tINITIAL\tINSURANCE\tPATIENT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.Timestamp, e.CalculationType,
					models.FormatDollars(e.InitialAmount),
					models.FormatDollars(e.InsuranceAmount),
					models.FormatDollars(e.PatientAmount),
				)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one calculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid history entry id %q", args[0])
			}
			entries, err := a.svc.DeleteHistoryEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d calculations remaining\n", len(entries))
			return nil
		},
	}

	clearAll := &cobra.Command{
		Use:   "clear",
		Short: "Delete every calculation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}

	cmd.AddCommand(list, del, clearAll)
	return cmd
}

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Remember, forget or inspect the stored Google API key",
		Long: `Manage the remembered Google API key.

The key is obfuscated at rest, not encrypted.`,
	}

	remember := &cobra.Command{
		Use:   "remember <api-key>",
		Short: "Remember a key for AI calculations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.RememberAPIKey(cmd.Context(), args[0], true); err != nil {
				return err
			}
			status := a.svc.CredentialStatus(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Remembered key %s\n", status.Fingerprint)
			return nil
		},
	}

	forget := &cobra.Command{
		Use:   "forget",
		Short: "Forget the remembered key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.ForgetAPIKey(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Key forgotten")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether a key is remembered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status := a.svc.CredentialStatus(cmd.Context())
			out := cmd.OutOrStdout()
			switch {
			case status.Remembered:
				fmt.Fprintf(out, "Remembered key %s\n", status.Fingerprint)
			case status.HasDefault:
				fmt.Fprintln(out, "No remembered key, GEMINI_API_KEY will be used")
			default:
				fmt.Fprintln(out, "No key configured")
			}
			return nil
		},
	}

	cmd.AddCommand(remember, forget, status)
	return cmd
}
