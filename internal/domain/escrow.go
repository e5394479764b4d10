package domain

import "time"

// AutoReleaseGracePeriod is how long after funds are locked a delivered but
// unconfirmed trade becomes eligible for permissionless auto-release.
const AutoReleaseGracePeriod = 7 * 24 * time.Hour

// Escrow is the locked-fund record tied to a listing's purchase. It is
// created when the purchase occurs and never deleted: settlement and dispute
// resolution zero the Amount instead. Amount == 0 is the sentinel that marks
// the escrow settled and blocks any further payout or dispute, regardless of
// the two confirmation flags.
type Escrow struct {
	ListingID       int64     `json:"listing_id"`
	Amount          int64     `json:"amount"`
	BuyerConfirmed  bool      `json:"buyer_confirmed"`
	SellerDelivered bool      `json:"seller_delivered"`
	LockedAt        time.Time `json:"locked_at"`
}

// Active reports whether funds are still locked in this escrow.
func (e Escrow) Active() bool {
	return e.Amount > 0
}

// ReleasableAt returns the earliest instant auto-release may be invoked.
func (e Escrow) ReleasableAt() time.Time {
	return e.LockedAt.Add(AutoReleaseGracePeriod)
}
