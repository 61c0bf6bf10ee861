package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"storefront/internal/cart"
	"storefront/internal/model"
)

func productsCmd() *cobra.Command {
	var category, search string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if category != "" {
				query.Set("category", category)
			}
			if search != "" {
				query.Set("search", search)
			}
			path := "/products"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}

			var products []model.Product
			if err := call("GET", path, nil, &products); err != nil {
				return err
			}
			if quiet {
				for _, p := range products {
					fmt.Println(p.ID)
				}
				return nil
			}
			fmt.Print(formatProducts(products))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Filter by category")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Free text search")
	return cmd
}

func cartCmd() *cobra.Command {
	var empty bool

	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			method := "GET"
			if empty {
				method = "DELETE"
			}

			var snap cart.Snapshot
			if err := call(method, "/cart", nil, &snap); err != nil {
				return err
			}
			if quiet {
				fmt.Println(snap.Totals.Total)
				return nil
			}
			if empty {
				printSuccess("Cart cleared")
			}
			fmt.Print(formatCart(snap))
			return nil
		},
	}

	cmd.Flags().BoolVar(&empty, "clear", false, "Empty the cart")
	return cmd
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <product-id>",
		Short: "Add a product to the cart, or remove it if present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Action cart.Action   `json:"action"`
				Cart   cart.Snapshot `json:"cart"`
			}
			if err := call("POST", "/cart/toggle", map[string]string{"product_id": args[0]}, &resp); err != nil {
				return err
			}
			if quiet {
				fmt.Println(resp.Action)
				return nil
			}
			if resp.Action == cart.Added {
				printSuccess("Added to cart")
			} else {
				printSuccess("Removed from cart")
			}
			fmt.Print(formatCart(resp.Cart))
			return nil
		},
	}
}

func qtyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qty <product-id> <quantity>",
		Short: "Set the quantity of a cart item (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty < 0 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}

			path := "/cart/items/" + url.PathEscape(args[0])
			var snap cart.Snapshot
			if qty == 0 {
				err = call("DELETE", path, nil, &snap)
			} else {
				err = call("PUT", path, map[string]int{"quantity": qty}, &snap)
			}
			if err != nil {
				return err
			}
			if quiet {
				fmt.Println(snap.Totals.Total)
				return nil
			}
			printSuccess("Cart updated")
			fmt.Print(formatCart(snap))
			return nil
		},
	}
}

func couponCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupon",
		Short: "Apply or remove a coupon code",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <code>",
		Short: "Apply a coupon code to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap cart.Snapshot
			if err := call("POST", "/cart/coupon", map[string]string{"code": args[0]}, &snap); err != nil {
				return err
			}
			if quiet {
				fmt.Println(snap.Totals.Total)
				return nil
			}
			printSuccess("Coupon applied")
			fmt.Print(formatCart(snap))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "Remove the applied coupon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap cart.Snapshot
			if err := call("DELETE", "/cart/coupon", nil, &snap); err != nil {
				return err
			}
			if quiet {
				fmt.Println(snap.Totals.Total)
				return nil
			}
			printSuccess("Coupon removed")
			fmt.Print(formatCart(snap))
			return nil
		},
	})

	return cmd
}

func wishlistCmd() *cobra.Command {
	var toggle string

	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Show the wishlist, or toggle a product on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []model.Product
			if toggle == "" {
				if err := call("GET", "/wishlist", nil, &items); err != nil {
					return err
				}
			} else {
				var resp struct {
					InWishlist bool            `json:"in_wishlist"`
					Items      []model.Product `json:"items"`
				}
				if err := call("POST", "/wishlist/toggle", map[string]string{"product_id": toggle}, &resp); err != nil {
					return err
				}
				if resp.InWishlist {
					printSuccess("Added to wishlist")
				} else {
					printSuccess("Removed from wishlist")
				}
				items = resp.Items
			}

			if quiet {
				for _, p := range items {
					fmt.Println(p.ID)
				}
				return nil
			}
			fmt.Print(formatProducts(items))
			return nil
		},
	}

	cmd.Flags().StringVarP(&toggle, "toggle", "t", "", "Product ID to add or remove")
	return cmd
}

func ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List past orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var orders []model.Order
			if err := call("GET", "/orders", nil, &orders); err != nil {
				return err
			}
			for _, o := range orders {
				if quiet {
					fmt.Println(o.ID)
					continue
				}
				fmt.Printf("  %s%s%s  %-10s $%s\n", colorCyan, o.ID, colorReset, o.Status, model.FromFloat(o.TotalAmount))
			}
			return nil
		},
	}
}
