package cli

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/spf13/cobra"
)

func (r *runner) waitlistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Manage the waitlist",
	}

	add := &cobra.Command{
		Use:   "add <email>",
		Short: "Add an email to the waitlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, _ := cmd.Flags().GetString("ip")
			source, _ := cmd.Flags().GetString("source")
			if err := r.app.Lifecycle.AddToWaitlist(cmd.Context(), args[0], ip, time.Now(), source); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s added to the waitlist\n", args[0])
			return nil
		},
	}
	add.Flags().String("ip", "", "signup IP address")
	add.Flags().String("source", "cli", "signup source")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the waitlist in signup order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := r.app.Admin.GetWaitlist(cmd.Context())
			if err != nil {
				return err
			}
			return printAccounts(cmd.OutOrStdout(), wl, func(a *models.Account) time.Time { return a.WaitlistTime })
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func (r *runner) inviteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite <email>",
		Short: "Invite a waitlisted email and print its invite token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := r.app.Lifecycle.InviteSignup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	undo := &cobra.Command{
		Use:   "undo <email> <token>",
		Short: "Return an invited email to the waitlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if v, _ := cmd.Flags().GetString("at"); v != "" {
				t, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				at = t
			}
			if err := r.app.Lifecycle.UndoInvite(cmd.Context(), args[0], args[1], at); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s returned to the waitlist\n", args[0])
			return nil
		},
	}
	undo.Flags().String("at", "", "waitlist time (RFC3339); defaults to the original signup time")

	cmd.AddCommand(undo)
	return cmd
}

func (r *runner) invitesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "Inspect outstanding invites",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List outstanding invites, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := r.app.Admin.GetInvites(cmd.Context())
			if err != nil {
				return err
			}
			return printAccounts(cmd.OutOrStdout(), list, func(a *models.Account) time.Time { return a.InviteTime })
		},
	})
	return cmd
}

func (r *runner) usersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect active users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active users in activation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := r.app.Admin.GetUsers(cmd.Context())
			if err != nil {
				return err
			}
			return printAccounts(cmd.OutOrStdout(), list, func(a *models.Account) time.Time { return a.CreatedAt })
		},
	})
	return cmd
}
