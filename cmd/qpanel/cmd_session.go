package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"qpanel/internal/config"

	"github.com/spf13/cobra"
)

var (
	loginPassword string
	loginSave     bool
)

// loginCmd checks a password against the panel
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check the panel password and optionally save it",
	Long: `Exchanges the panel password for a session token to verify it.

Tokens are never stored. Use --save to keep the password in the config file
so later commands and the console sign in on their own.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd invalidates the server side session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign in and invalidate the session token on the server",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Panel password (read from stdin when empty)")
	loginCmd.Flags().BoolVar(&loginSave, "save", false, "Save the password to the config file")
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	if cfg.IsVaden() {
		return errors.New("vaden consoles have no panel password")
	}
	password := loginPassword
	if password == "" {
		var err error
		if password, err = readPassword(cmd); err != nil {
			return err
		}
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SignIn(ctx, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s\n", cfg.Server.BaseURL)

	if loginSave {
		// start from the file, not from flag overrides
		stored, err := config.Load(configPath)
		if err != nil {
			return err
		}
		stored.Auth.Password = password
		if err := stored.Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password saved to %s\n", configPath)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openAt(ctx, "/")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}
