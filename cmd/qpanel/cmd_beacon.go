package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"qpanel/internal/beacon"

	"github.com/spf13/cobra"
)

var (
	beaconPage    string
	beaconPayload string
	beaconVisitor string
)

// beaconCmd groups analytics beacon commands
var beaconCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Talk to the analytics event endpoint",
}

var beaconSendCmd = &cobra.Command{
	Use:   "send <event>",
	Short: "Record an analytics event the way a site visitor would",
	Long: `Visits --page to learn which version the server picks, then posts the
event with that version. Useful to check event tracking end to end.`,
	Example: `  qpanel beacon send signup --page "/pricing?plan=pro" --payload '{"plan":"pro"}'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runBeaconSend,
}

func init() {
	beaconSendCmd.Flags().StringVar(&beaconPage, "page", "/", "Page the event is raised on, with optional query")
	beaconSendCmd.Flags().StringVar(&beaconPayload, "payload", "", "JSON payload of the event")
	beaconSendCmd.Flags().StringVar(&beaconVisitor, "visitor", "", "Visitor id (random when empty)")
	beaconCmd.AddCommand(beaconSendCmd)
}

func runBeaconSend(cmd *cobra.Command, args []string) error {
	var payload any
	if beaconPayload != "" {
		if !json.Valid([]byte(beaconPayload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}
		payload = json.RawMessage(beaconPayload)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// the served version arrives as a cookie on the page response
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Client.URL(beaconPage), nil)
	if err != nil {
		return err
	}
	resp, err := a.Client.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("visit %s: %w", beaconPage, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	visitor := beaconVisitor
	if visitor == "" {
		visitor = beacon.NewVisitorID()
	}
	ev, err := a.Beacon.NewEvent(args[0], beaconPage, payload, visitor)
	if err != nil {
		return err
	}
	if err := a.Beacon.Deliver(ctx, ev); err != nil {
		return err
	}

	version := ev.Version
	if version == "" {
		version = "unknown"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s for visitor %s (version %s)\n", ev.Name, ev.Visitor, version)
	return nil
}
