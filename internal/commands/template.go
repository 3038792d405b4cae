package commands

import "strings"

// Placeholders substituted into delivery commands.
const (
	PlaceholderPlayer  = "{player}"
	PlaceholderOrderID = "{order_id}"
)

// Render substitutes the recipient and order id into a raw command.
// Replacement is literal and single pass: values containing placeholder text
// are not expanded again, and unknown placeholders pass through unchanged.
func Render(raw, recipient, orderID string) string {
	return strings.NewReplacer(
		PlaceholderPlayer, recipient,
		PlaceholderOrderID, orderID,
	).Replace(raw)
}
