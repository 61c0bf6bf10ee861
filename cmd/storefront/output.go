package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront/internal/cart"
	"storefront/internal/model"
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(prefix + pretty.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// formatCart renders line items and totals as an aligned table.
func formatCart(snap cart.Snapshot) string {
	if snap.Empty() {
		return "  (empty)\n"
	}

	width := 0
	for _, item := range snap.Items {
		width = max(width, len(item.Name))
	}

	var b strings.Builder
	for _, item := range snap.Items {
		fmt.Fprintf(&b, "  %-*s  %s%-10s%s  x%-3d $%s\n",
			width, item.Name, colorGray, item.ID, colorReset, item.Quantity,
			item.UnitPrice()*model.Cents(item.Quantity))
	}
	fmt.Fprintf(&b, "  Subtotal: $%s\n", snap.Totals.Subtotal)
	if snap.Coupon != nil {
		fmt.Fprintf(&b, "  Coupon:   %s%s%s (-%g%%)\n", colorCyan, snap.Coupon.Code, colorReset, snap.Coupon.DiscountPercentage)
	}
	fmt.Fprintf(&b, "  Total:    %s$%s%s\n", colorGreen, snap.Totals.Total, colorReset)
	return b.String()
}

func formatProducts(products []model.Product) string {
	if len(products) == 0 {
		return "  (none)\n"
	}
	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "  %s%-24s%s  %-32s $%s\n", colorGray, p.ID, colorReset, p.Name, model.FromFloat(p.Price))
	}
	return b.String()
}
