package main

import (
	"fmt"
	"time"

	"qpanel/cmd/qpanel/ui"

	"github.com/spf13/cobra"
)

var (
	windowFrom string
	windowTo   string
	exportDir  string
)

// analyticsCmd prints visit statistics
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show visits and event percentages per version",
	Long: `Shows visit statistics of every version between --from and --to.
Dates are YYYY-MM-DD or RFC 3339. The window defaults to the last 7 days.`,
	Args: cobra.NoArgs,
	RunE: runAnalytics,
}

// eventsCmd groups event commands
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with recorded events",
}

var eventsCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Export the events of a window as CSV",
	Args:  cobra.NoArgs,
	RunE:  runEventsCSV,
}

func init() {
	for _, c := range []*cobra.Command{analyticsCmd, eventsCSVCmd} {
		c.Flags().StringVar(&windowFrom, "from", "", "Window start (YYYY-MM-DD or RFC 3339)")
		c.Flags().StringVar(&windowTo, "to", "", "Window end (YYYY-MM-DD or RFC 3339)")
	}
	eventsCSVCmd.Flags().StringVarP(&exportDir, "out", "o", "", "Directory for the export (default export.dir)")
	eventsCmd.AddCommand(eventsCSVCmd)
}

// parseDate accepts a date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// window resolves --from and --to against the default window.
func window(defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, to := defFrom, defTo
	var err error
	if windowFrom != "" {
		if from, err = parseDate(windowFrom); err != nil {
			return from, to, err
		}
	}
	if windowTo != "" {
		if to, err = parseDate(windowTo); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/analytics")
	if err != nil {
		return err
	}
	defer a.Close()

	from, to, err := window(a.Sync.Window(time.Now()))
	if err != nil {
		return err
	}
	if err := a.Sync.RefreshAnalytics(ctx, from, to); err != nil {
		return err
	}

	view := a.Store.Analytics()
	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s to %s: %d visits\n\n",
		view.DateStart.Format(time.DateOnly), view.DateEnd.Format(time.DateOnly), view.TotalVisits)
	fmt.Fprint(out, ui.VisitsTable(view.Stats).View(styles))
	fmt.Fprintln(out)
	fmt.Fprint(out, ui.EventsTable(view.Events).View(styles))
	return nil
}

func runEventsCSV(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/analytics")
	if err != nil {
		return err
	}
	defer a.Close()

	from, to, err := window(a.Sync.Window(time.Now()))
	if err != nil {
		return err
	}
	if to.Before(from) {
		from, to = to, from
	}
	a.Store.SetAnalyticsQuery(from, to)

	dir := exportDir
	if dir == "" {
		dir = cfg.Export.Dir
	}
	path, rows, err := a.Sync.ExportEvents(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", rows, path)
	return nil
}
