package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/spf13/cobra"
)

func (r *runner) statsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the population counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := r.app.Admin.GetDashboardValues(cmd.Context())
			if err != nil {
				return err
			}
			if err := printStats(cmd.OutOrStdout(), st); err != nil {
				return err
			}

			raw, _ := cmd.Flags().GetString("since")
			if raw == "" {
				return nil
			}
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			g, err := r.app.Admin.GetGrowth(cmd.Context(), since)
			if err != nil {
				return err
			}
			return printGrowth(cmd.OutOrStdout(), g)
		},
	}
	cmd.Flags().String("since", "", "also count waitlist joins and activations at or after this RFC3339 time")
	return cmd
}

func (r *runner) reconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the counters with the indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repair, _ := cmd.Flags().GetBool("repair")
			rep, err := r.app.Admin.Reconcile(cmd.Context(), repair)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rep.Drift) == 0 {
				fmt.Fprintln(out, "counters match indexes")
				return nil
			}
			for _, d := range rep.Drift {
				fmt.Fprintf(out, "%s: counted %d, observed %d\n", d.Counter, d.Counted, d.Observed)
			}
			if rep.Repaired {
				fmt.Fprintln(out, "counters repaired")
			}
			return nil
		},
	}
	cmd.Flags().Bool("repair", false, "overwrite drifted counters with observed values")
	return cmd
}

func (r *runner) superuserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "superuser",
		Short: "Manage super users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <email>",
		Short: "Create a super user; the password is prompted for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := readNewPassword(cmd)
			if err != nil {
				return err
			}
			if err := r.app.Admin.CreateSuperUser(cmd.Context(), &models.Account{
				Email:        args[0],
				PasswordHash: hash,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "super user %s created\n", args[0])
			return nil
		},
	})
	return cmd
}

func (r *runner) passwordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <token>",
		Short: "Redeem a password reset token; the new password is prompted for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := readNewPassword(cmd)
			if err != nil {
				return err
			}
			a, err := r.app.Tokens.ResetPassword(cmd.Context(), args[0], hash)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", a.Email)
			return nil
		},
	})
	return cmd
}

func (r *runner) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Upload a JSON snapshot of the populations to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := r.app.Exporter.Export(cmd.Context())
			if err != nil {
				return err
			}
			r.app.Logger().Info(cmd.Context(), "snapshot exported", "key", key)
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
