package enums

import "fmt"

// PaymentType tells how a product variant may be paid for: with currency, with
// loyalty points, or either at the shopper's choice.
type PaymentType string

const (
	PaymentTypeCurrency PaymentType = "currency"
	PaymentTypePoints   PaymentType = "points"
	PaymentTypeBoth     PaymentType = "both"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeCurrency,
	PaymentTypePoints,
	PaymentTypeBoth,
}

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresPointPrice reports whether variants of this type must carry a point price.
func (p PaymentType) RequiresPointPrice() bool {
	return p == PaymentTypePoints || p == PaymentTypeBoth
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
