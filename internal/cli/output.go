package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/drawbridge/internal/models"
	"github.com/dmitrijs2005/drawbridge/internal/services"
)

func printAccounts(w io.Writer, list []*models.Account, when func(*models.Account) time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tSTAGE\tSCREEN NAME\tSINCE")
	for _, a := range list {
		since := ""
		if t := when(a); !t.IsZero() {
			since = t.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Email, a.Stage, a.ScreenName, since)
	}
	return tw.Flush()
}

func printStats(w io.Writer, s models.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "waitlist\t%d\n", s.NumWaitlist)
	fmt.Fprintf(tw, "invited\t%d\n", s.NumInvited)
	fmt.Fprintf(tw, "unconfirmed\t%d\n", s.NumUnConfirmed)
	fmt.Fprintf(tw, "users\t%d\n", s.NumUsers)
	return tw.Flush()
}

func printGrowth(w io.Writer, g services.Growth) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	since := g.Since.UTC().Format(time.RFC3339)
	fmt.Fprintf(tw, "waitlisted since %s\t%d\n", since, g.Waitlisted)
	fmt.Fprintf(tw, "activated since %s\t%d\n", since, g.Activated)
	return tw.Flush()
}
