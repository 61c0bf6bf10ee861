package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/model"
)

func loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and load the cart and wishlist",
		Long: `Sign in to the store. The password is taken from --password, then
STOREFRONT_PASSWORD, then read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("STOREFRONT_PASSWORD")
			}
			if password == "" {
				var err error
				if password, err = readPassword(); err != nil {
					return err
				}
			}

			var user model.User
			if err := call("POST", "/auth/login", map[string]string{
				"email":    args[0],
				"password": password,
			}, &user); err != nil {
				return err
			}

			if quiet {
				fmt.Println(user.ID)
				return nil
			}
			printSuccess("Logged in as %s", user.Name)
			fmt.Printf("  Email: %s%s%s\n", colorCyan, user.Email, colorReset)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	return cmd
}

func readPassword() (string, error) {
	if !quiet {
		fmt.Fprint(os.Stderr, "Password: ")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := call("POST", "/auth/logout", nil, nil); err != nil {
				return err
			}
			printSuccess("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var user model.User
			if err := call("GET", "/auth/me", nil, &user); err != nil {
				return err
			}

			if quiet {
				fmt.Println(user.Email)
				return nil
			}
			fmt.Printf("%s%s%s <%s>\n", colorBold, user.Name, colorReset, user.Email)
			if !user.IsEmailVerified {
				printWarning("Email address not verified")
			}
			return nil
		},
	}
}
