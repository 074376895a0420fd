package redis

import "fmt"

const prefix = "mercadito"

// RestockClaimKey marks that an order's reserved stock was already returned.
func RestockClaimKey(orderID string) string {
	return fmt.Sprintf("%s:restock:claimed:%s", prefix, orderID)
}

// InventoryClaimKey marks an inventory-sync message as applied.
func InventoryClaimKey(requestID string) string {
	return fmt.Sprintf("%s:inventory:applied:%s", prefix, requestID)
}

// CheckoutLockKey guards one in-flight checkout per customer and idempotency key.
func CheckoutLockKey(customerID, idemKey string) string {
	return fmt.Sprintf("%s:checkout:lock:%s:%s", prefix, customerID, idemKey)
}

// CheckoutStateKey stores the outcome of a checkout for replay.
func CheckoutStateKey(customerID, idemKey string) string {
	return fmt.Sprintf("%s:checkout:state:%s:%s", prefix, customerID, idemKey)
}

// GeocodeKey caches postal code lookups.
func GeocodeKey(postalCode string) string {
	return fmt.Sprintf("%s:geo:%s", prefix, postalCode)
}

// RateLimitKey is the sliding-window bucket for one caller of a route.
func RateLimitKey(route, kind, id string) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", route, kind, id)
}
