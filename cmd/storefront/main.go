// storefront is a command-line client for the storefront daemon. Each
// command performs a single operation, making it composable for scripts.
//
// Examples:
//
//	storefront login ada@example.com --password secret
//	storefront toggle 64f1c2
//	storefront coupon apply SAVE10
//	storefront checkout --shipping shipping.json
//	storefront pay pm_card_visa
//	storefront confirm payment-intent pi_123
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// Global flags (apply to all commands)
var (
	daemonURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "storefront - shop from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor || os.Getenv("NO_COLOR") != "" {
				disableColors()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&daemonURL, "daemon", envOrDefault("STOREFRONT_DAEMON", "http://localhost:8080"), "storefront daemon base URL")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - only output the essential value")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose - show full request/response")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(productsCmd())
	rootCmd.AddCommand(cartCmd())
	rootCmd.AddCommand(toggleCmd())
	rootCmd.AddCommand(qtyCmd())
	rootCmd.AddCommand(couponCmd())
	rootCmd.AddCommand(wishlistCmd())
	rootCmd.AddCommand(checkoutCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(ordersCmd())

	return rootCmd
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
