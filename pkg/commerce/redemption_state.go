package commerce

import "encoding/json"

// Metadata keys the loyalty service owns on a cart. Their presence encodes
// redemption status: all three set means Redeemed, all absent means None.
const (
	MetadataKeyPointsCost         = "points_cost"
	MetadataKeyPointsPromoID      = "points_promo_id"
	MetadataKeyRedeemedVariantIDs = "redeemed_variant_ids"
)

// RedemptionState is the typed view of the loyalty metadata on a cart.
type RedemptionState struct {
	PointsCost         int64
	PromoID            string
	RedeemedVariantIDs []string
}

// Redeemed reports whether the cart carries an active point reservation.
func (s RedemptionState) Redeemed() bool {
	return s.PointsCost > 0 && s.PromoID != ""
}

// RedemptionStateFrom extracts the loyalty fields from cart metadata. Metadata
// written by other services is ignored; the decode tolerates the JSON number
// forms the platform returns.
func RedemptionStateFrom(metadata map[string]any) RedemptionState {
	var state RedemptionState
	if metadata == nil {
		return state
	}
	state.PointsCost = asInt64(metadata[MetadataKeyPointsCost])
	if promoID, ok := metadata[MetadataKeyPointsPromoID].(string); ok {
		state.PromoID = promoID
	}
	switch raw := metadata[MetadataKeyRedeemedVariantIDs].(type) {
	case []string:
		state.RedeemedVariantIDs = raw
	case []any:
		for _, v := range raw {
			if id, ok := v.(string); ok {
				state.RedeemedVariantIDs = append(state.RedeemedVariantIDs, id)
			}
		}
	}
	return state
}

// MetadataPatch returns the merge-write payload that records this state on the
// cart. Zero values map to explicit nulls so removal clears the keys.
func (s RedemptionState) MetadataPatch() map[string]any {
	patch := map[string]any{
		MetadataKeyPointsCost:         nil,
		MetadataKeyPointsPromoID:      nil,
		MetadataKeyRedeemedVariantIDs: nil,
	}
	if s.PointsCost > 0 {
		patch[MetadataKeyPointsCost] = s.PointsCost
	}
	if s.PromoID != "" {
		patch[MetadataKeyPointsPromoID] = s.PromoID
	}
	if len(s.RedeemedVariantIDs) > 0 {
		patch[MetadataKeyRedeemedVariantIDs] = s.RedeemedVariantIDs
	}
	return patch
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
