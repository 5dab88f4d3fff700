package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wesm/mailsaver/internal/workflow"
)

var passwordFlag string

var registerCmd = &cobra.Command{
	Use:   "register EMAIL",
	Short: "Create an account on the remote service and log in",
	Long: `Create an account on the remote service. The session token is stored
locally so later commands run as this user.

The password is read from --password or, if omitted, from the first line of
standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, args[0], (*workflow.Orchestrator).Register)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Log in to the remote service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd, args[0], (*workflow.Orchestrator).Login)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.orch.Logout(cmd.Context()); err != nil {
			return a.report(err)
		}
		a.printer.Info("Logged out.")
		return nil
	},
}

type authMethod func(o *workflow.Orchestrator, ctx context.Context, email, password string) (*workflow.Outcome, error)

func runAuth(cmd *cobra.Command, email string, method authMethod) error {
	password := passwordFlag
	if password == "" {
		var err error
		password, err = readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := method(a.orch, cmd.Context(), email, password); err != nil {
		return a.report(err)
	}
	sess, _ := a.orch.Session()
	a.printer.Info("Logged in as %s.", sess.Email)
	return nil
}

// readPassword prompts for the password when r is a terminal and otherwise
// returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	if isTerminal(r) {
		var password string
		err := huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return "", context.Canceled
		}
		return password, err
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&passwordFlag, "password", "", "account password (default: read from stdin)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logoutCmd)
}
