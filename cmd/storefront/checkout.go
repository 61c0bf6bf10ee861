package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"storefront/internal/cart"
	"storefront/internal/confirm"
	"storefront/internal/model"
	"storefront/internal/payment"
)

// checkoutView mirrors the daemon's checkout state.
type checkoutView struct {
	Shipping model.ShippingDetails `json:"shipping"`
	Session  payment.Session       `json:"session"`
	Cart     cart.Snapshot         `json:"cart"`
}

func checkoutCmd() *cobra.Command {
	var (
		details  model.ShippingDetails
		fromFile string
		show     bool
		leave    bool
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Start checkout with shipping details",
		Long: `Start checkout: validates shipping details and opens a payment session
for the current cart. Details come from flags or from a JSON file
(--from-file). Use --show to print the open checkout and --leave to
abandon it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case leave:
				if err := call("DELETE", "/checkout", nil, nil); err != nil {
					return err
				}
				printSuccess("Left checkout")
				return nil
			case show:
				var view checkoutView
				if err := call("GET", "/checkout", nil, &view); err != nil {
					return err
				}
				printCheckout(view)
				return nil
			}

			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("reading shipping file: %w", err)
				}
				if err := json.Unmarshal(data, &details); err != nil {
					return fmt.Errorf("invalid shipping JSON: %w", err)
				}
			}

			var view checkoutView
			if err := call("POST", "/checkout", map[string]any{"shipping": details}, &view); err != nil {
				return err
			}
			printCheckout(view)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&details.FirstName, "first-name", "", "Shipping first name")
	f.StringVar(&details.LastName, "last-name", "", "Shipping last name")
	f.StringVar(&details.Email, "email", "", "Contact email")
	f.StringVar(&details.Phone, "phone", "", "Contact phone (at least 10 digits)")
	f.StringVar(&details.Address, "address", "", "Street address")
	f.StringVar(&details.City, "city", "", "City")
	f.StringVar(&details.State, "state", "", "State or region")
	f.StringVar(&details.ZipCode, "zip", "", "Postal code")
	f.StringVar(&details.Country, "country", "", "Country")
	f.StringVar(&fromFile, "from-file", "", "Read shipping details from a JSON file")
	f.BoolVar(&show, "show", false, "Show the open checkout")
	f.BoolVar(&leave, "leave", false, "Abandon the open checkout")
	cmd.MarkFlagsMutuallyExclusive("show", "leave", "from-file")

	return cmd
}

func printCheckout(view checkoutView) {
	if quiet {
		fmt.Println(view.Session.State)
		return
	}
	printSuccess("Checkout ready")
	fmt.Print(formatCart(view.Cart))
	printSession(view.Session)
}

func printSession(s payment.Session) {
	fmt.Printf("  Payment: %s%s%s", colorCyan, s.State, colorReset)
	if s.IntentID != "" {
		fmt.Printf(" (%s)", s.IntentID)
	}
	fmt.Println()
	if s.Notice != "" {
		printWarning("%s", s.Notice)
	}
	if s.LastError != "" {
		printWarning("%s", s.LastError)
	}
}

func payCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <payment-method>",
		Short: "Submit payment for the open checkout",
		Long: `Submit payment for the open checkout with a card processor payment
method id, for example pm_card_visa in test mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Session payment.Session `json:"session"`
				Route   string          `json:"route"`
			}
			if err := call("POST", "/checkout/pay", map[string]string{"payment_method": args[0]}, &resp); err != nil {
				return err
			}

			s := resp.Session
			if quiet {
				fmt.Println(s.State)
				return nil
			}
			switch s.State {
			case payment.Succeeded:
				printSuccess("Payment completed!")
				if s.IntentID != "" {
					fmt.Printf("  Payment intent: %s%s%s\n", colorGreen, s.IntentID, colorReset)
					printInfo("Confirm with: storefront confirm %s %s", confirm.PaymentIntent, s.IntentID)
				}
				if s.RedirectURL != "" {
					fmt.Printf("  Continue URL: %s%s%s\n", colorBlue, s.RedirectURL, colorReset)
				}
			case payment.Failed:
				printWarning("Payment failed (%s)", s.Failure)
				printSession(s)
			default:
				printSession(s)
			}
			return nil
		},
	}
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <kind> <id>",
		Short: "Confirm a completed payment and record the order",
		Long: `Confirm a completed payment. Kind is one of session, payment-intent,
or intent-record. Confirming the same id again is a no-op.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := confirm.ParseKind(args[0])
			if err != nil {
				return err
			}

			var res confirm.Result
			if err := call("POST", "/confirm/"+string(kind)+"/"+url.PathEscape(args[1]), nil, &res); err != nil {
				return err
			}

			if quiet {
				if res.Order != nil {
					fmt.Println(res.Order.ID)
				}
				return nil
			}
			if res.AlreadyConfirmed {
				printInfo("Order already confirmed")
			} else {
				printSuccess("Order confirmed")
			}
			if res.Order != nil {
				fmt.Printf("  Order ID: %s%s%s\n", colorGreen, res.Order.ID, colorReset)
			}
			if res.Message != "" {
				fmt.Printf("  %s\n", res.Message)
			}
			return nil
		},
	}
}
