package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/client"
)

var (
	loginCompany  string
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange credentials for an access token",
	Long: `Log in and print the access token on stdout. The boards you can
watch are listed on stderr so they stay out of command substitution.

The password defaults to BOARDCTL_PASSWORD.

Example:
  export BOARDCTL_TOKEN=$(boardctl login --company acme --email you@acme.test)`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginCompany, "company", "", "company slug")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", os.Getenv("BOARDCTL_PASSWORD"), "account password")
	_ = loginCmd.MarkFlagRequired("company")
	_ = loginCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if loginPassword == "" {
		return printError("missing password", "Pass --password or set BOARDCTL_PASSWORD.", nil)
	}

	api := client.NewAPIClient(serverURL, nil, nil)
	session, err := api.Login(cmd.Context(), loginCompany, loginEmail, loginPassword)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return printError("login failed", "The company, email or password is wrong.", nil)
		}
		return printError("login failed", err.Error(), []string{"Check that the server is reachable: " + serverURL})
	}
	fmt.Fprintln(cmd.OutOrStdout(), session.AccessToken)
	renderBoards(cmd.ErrOrStderr(), out, session)
	return nil
}
