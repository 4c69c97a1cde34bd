package store

import "fmt"

// Key namespaces shared by every service.
func OrderKey(orderID string) string { return "order:" + orderID }

func InventoryKey(productID string) string { return "inventory:" + productID }

func ReservationKey(orderID, productID string) string {
	return fmt.Sprintf("reservation:%s:%s", orderID, productID)
}

func NotificationKey(id int64) string { return fmt.Sprintf("notification:%d", id) }

func IndexKey(name string) string { return "index:" + name }

func SequenceKey(name string) string { return "sequence:" + name }
