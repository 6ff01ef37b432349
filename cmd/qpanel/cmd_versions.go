package main

import (
	"fmt"

	"qpanel/cmd/qpanel/ui"
	"qpanel/internal/state"

	"github.com/spf13/cobra"
)

var (
	versionWeight uint16
	versionParam  string
)

// versionsCmd groups the deployed version commands
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List and configure deployed versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployed versions and their traffic split",
	Args:  cobra.NoArgs,
	RunE:  runVersionsList,
}

var versionsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Set the traffic split strategy of a version",
	Long: `Sets either a weight or a url parameter for a version and saves it.

Examples:
  qpanel versions set stable --weight 90
  qpanel versions set beta --param beta`,
	Args: cobra.ExactArgs(1),
	RunE: runVersionsSet,
}

var versionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a deployed version",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsDelete,
}

func init() {
	versionsSetCmd.Flags().Uint16Var(&versionWeight, "weight", 0, "Share of new sessions, relative to other weighted versions")
	versionsSetCmd.Flags().StringVar(&versionParam, "param", "", "Query parameter that selects the version")
	versionsSetCmd.MarkFlagsMutuallyExclusive("weight", "param")
	versionsSetCmd.MarkFlagsOneRequired("weight", "param")

	versionsCmd.AddCommand(versionsListCmd, versionsSetCmd, versionsDeleteCmd)
}

// versionsTable renders versions for the terminal.
func versionsTable(v state.VersionsView) *ui.SimpleTable {
	t := ui.NewSimpleTable("", "Version", "Strategy", "Value")
	t.Empty = "No versions deployed."
	for _, ver := range v.List {
		switch ver.Selection {
		case state.SelectionURLParam:
			t.AddRow(ver.Name, "url param", ver.URLParam)
		default:
			t.AddRow(ver.Name, "weight", fmt.Sprint(ver.Weight))
		}
	}
	return t
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/versions")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sync.RefreshVersions(ctx); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), versionsTable(a.Store.Versions()).View(ui.DefaultStyles()))
	return nil
}

func runVersionsSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/versions")
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	if err := a.Sync.RefreshVersions(ctx); err != nil {
		return err
	}
	selection := state.SelectionWeight
	if cmd.Flags().Changed("param") {
		if versionParam == "" {
			return fmt.Errorf("--param must not be empty")
		}
		selection = state.SelectionURLParam
	}
	if !a.Store.SetVersionStrategy(name, selection, versionWeight, versionParam) {
		return fmt.Errorf("unknown version %q", name)
	}
	if err := a.Sync.SaveVersions(ctx); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), versionsTable(a.Store.Versions()).View(ui.DefaultStyles()))
	return nil
}

func runVersionsDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/versions")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sync.DeleteVersion(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted version %s\n", args[0])
	return nil
}
