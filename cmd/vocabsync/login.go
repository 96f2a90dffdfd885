package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the sync server token",
	Long: `Login stores the bearer token used for sync. A sync that was requested
while logged out runs right away if the server is reachable.`,
	Example: `  vocabsync login
  echo "$TOKEN" | vocabsync login --stdin`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE:  runLogout,
}

var (
	loginToken string
	loginStdin bool
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)

	loginCmd.Flags().StringVar(&loginToken, "token", "",
		"Bearer token (will prompt if not provided)")
	loginCmd.Flags().BoolVar(&loginStdin, "stdin", false,
		"Read the token from standard input")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	token := loginToken
	switch {
	case token != "":
	case loginStdin:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token = line
	default:
		token, err = promptSecret("Token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
	}

	result, err := c.Login(ctx, strings.TrimSpace(token))
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"sync":    result,
		})
		return nil
	}

	printSuccess("Logged in")
	if result != nil {
		return reportResult(result)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}

	if err := c.Logout(ctx); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true})
		return nil
	}
	printSuccess("Logged out")
	return nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read without echo
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(secret), nil
}
