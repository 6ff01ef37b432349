package main

import (
	"fmt"
	"strconv"

	"qpanel/cmd/qpanel/ui"
	"qpanel/internal/state"

	"github.com/spf13/cobra"
)

// proxiesCmd groups the reverse proxy commands
var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Manage reverse proxies",
}

var proxiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reverse proxies in routing order",
	Args:  cobra.NoArgs,
	RunE:  runProxiesList,
}

var proxiesAddCmd = &cobra.Command{
	Use:   "add <prefix> <target>",
	Short: "Route requests under a path prefix to a target URL",
	Example: `  qpanel proxies add /api http://localhost:8080`,
	Args:  cobra.ExactArgs(2),
	RunE:  runProxiesAdd,
}

var proxiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a reverse proxy by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runProxiesDelete,
}

func init() {
	proxiesCmd.AddCommand(proxiesListCmd, proxiesAddCmd, proxiesDeleteCmd)
}

func proxiesTable(list []state.ReverseProxy) *ui.SimpleTable {
	t := ui.NewSimpleTable("", "ID", "Prefix", "Target").AlignRight(0)
	t.Empty = "No reverse proxies."
	for _, rp := range list {
		t.AddRow(strconv.Itoa(rp.ID), rp.Prefix, rp.Target)
	}
	return t
}

func runProxiesList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/proxies")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sync.RefreshProxies(ctx); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), proxiesTable(a.Store.Proxies()).View(ui.DefaultStyles()))
	return nil
}

func runProxiesAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/proxies")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sync.AddProxy(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), proxiesTable(a.Store.Proxies()).View(ui.DefaultStyles()))
	return nil
}

func runProxiesDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid proxy id %q", args[0])
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/proxies")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Sync.RemoveProxy(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted proxy %d\n", id)
	return nil
}
