package enums

import "fmt"

// OrderEventType names the commerce platform lifecycle events the worker consumes.
type OrderEventType string

const (
	OrderEventPlaced   OrderEventType = "order.placed"
	OrderEventCanceled OrderEventType = "order.canceled"
)

var validOrderEventTypes = []OrderEventType{
	OrderEventPlaced,
	OrderEventCanceled,
}

// IsValid reports whether the value is a known OrderEventType.
func (t OrderEventType) IsValid() bool {
	for _, candidate := range validOrderEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOrderEventType converts raw input into an OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	for _, candidate := range validOrderEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event type %q", value)
}
