package embeddings

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// CanonicalText builds the text representation of an invoice that gets
// embedded. The field set and ordering are fixed: every record renders the
// same fields in the same positions, so embeddings of structurally similar
// invoices land near each other. Changing this layout invalidates every
// stored vector.
func CanonicalText(inv *invoice.Invoice) string {
	number := inv.InvoiceNumber
	if number == "" {
		number = "N/A"
	}
	purchaser := inv.Purchaser
	if purchaser == "" {
		purchaser = "N/A"
	}
	recurring := "No"
	if inv.IsRecurring {
		recurring = "Yes"
	}

	var b strings.Builder
	b.WriteString("Invoice Information:\n")
	fmt.Fprintf(&b, "Vendor: %s (%s)\n", inv.VendorName, inv.VendorNormalized)
	fmt.Fprintf(&b, "Category: %s\n", inv.Category)
	fmt.Fprintf(&b, "Amount: $%.2f\n", inv.TotalAmount)
	fmt.Fprintf(&b, "Date: %s\n", inv.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Invoice Number: %s\n", number)
	fmt.Fprintf(&b, "Recurring: %s\n", recurring)
	fmt.Fprintf(&b, "Purchaser: %s", purchaser)
	return b.String()
}
