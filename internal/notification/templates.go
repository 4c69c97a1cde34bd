package notification

import (
	"fmt"
	"strings"

	"github.com/example/order-saga/internal/events"
)

// Notification types
const (
	TypeOrderConfirmation     = "order_confirmation"
	TypeOrderUpdate           = "order_update"
	TypeInventoryReserved     = "inventory_reserved"
	TypeInventoryInsufficient = "inventory_insufficient"
)

func orderCreatedMessage(ev events.OrderCreated) string {
	return fmt.Sprintf("Your order %s has been created successfully! Total amount: $%s",
		ev.OrderID, ev.TotalAmount.StringFixed(2))
}

func statusUpdatedMessage(ev events.OrderStatusUpdated) string {
	return fmt.Sprintf("Your order %s status has been updated to: %s", ev.OrderID, ev.Status)
}

// inventoryMessage renders an inventory_processed outcome and returns the
// notification type with the text.
func inventoryMessage(ev events.InventoryProcessed) (string, string) {
	var reserved, problems []string
	for _, item := range ev.InventoryStatus {
		switch item.Status {
		case events.ItemReserved:
			reserved = append(reserved, fmt.Sprintf("%s (%d units)", item.ProductID, item.ReservedQuantity))
		case events.ItemInsufficient:
			problems = append(problems, fmt.Sprintf("%s (need more, only %d available)", item.ProductID, item.AvailableQuantity))
		case events.ItemReservationFailed:
			problems = append(problems, fmt.Sprintf("%s (reservation failed)", item.ProductID))
		}
	}

	if ev.AllItemsReserved {
		return TypeInventoryReserved, fmt.Sprintf("Great news! All items for order %s have been reserved: %s",
			ev.OrderID, strings.Join(reserved, ", "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order %s has inventory issues: %s", ev.OrderID, strings.Join(problems, ", "))
	if len(reserved) > 0 {
		fmt.Fprintf(&b, ". Reserved: %s", strings.Join(reserved, ", "))
	}
	return TypeInventoryInsufficient, b.String()
}
