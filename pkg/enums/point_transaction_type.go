package enums

import "fmt"

// PointTransactionType maps to the point_transaction_type_enum enum in Postgres.
// Direction is encoded by the type, not by the sign of the points column.
type PointTransactionType string

const (
	PointTransactionTypeEarn   PointTransactionType = "earn"
	PointTransactionTypeSpend  PointTransactionType = "spend"
	PointTransactionTypeAdjust PointTransactionType = "adjust"
)

var validPointTransactionTypes = []PointTransactionType{
	PointTransactionTypeEarn,
	PointTransactionTypeSpend,
	PointTransactionTypeAdjust,
}

// String implements fmt.Stringer.
func (t PointTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PointTransactionType.
func (t PointTransactionType) IsValid() bool {
	for _, candidate := range validPointTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePointTransactionType converts raw input into a PointTransactionType.
func ParsePointTransactionType(value string) (PointTransactionType, error) {
	for _, candidate := range validPointTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point transaction type %q", value)
}
