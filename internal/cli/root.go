// Package cli is the drawbridge operator command line. Each command loads
// the configuration, opens the application for the duration of the command
// and prints results to the command's output stream.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/drawbridge/internal/app"
	"github.com/dmitrijs2005/drawbridge/internal/config"
	"github.com/spf13/cobra"
)

type runner struct {
	app *app.App
}

// Execute runs the command line given by args and releases the application
// afterwards, whether the command succeeded or not.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	r := &runner{}
	root := r.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if r.app != nil {
		if err != nil {
			r.app.Logger().Debug(ctx, "command failed", "command", cmd.CommandPath(), "error", err)
		}
		err = errors.Join(err, r.app.Close())
	}
	return err
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "drawbridge",
		Short:         "Operate the Drawbridge account lifecycle store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.ApplyFlags(cfg, cmd.Flags()); err != nil {
				return err
			}
			a, err := app.NewApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			r.app = a
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to a JSON configuration file")
	config.RegisterFlags(pf)

	root.AddCommand(
		r.waitlistCommand(),
		r.inviteCommand(),
		r.invitesCommand(),
		r.usersCommand(),
		r.statsCommand(),
		r.reconcileCommand(),
		r.superuserCommand(),
		r.passwordCommand(),
		r.exportCommand(),
	)
	return root
}
