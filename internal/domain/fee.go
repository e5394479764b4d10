package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxFeeRateBps caps the platform fee at 10%.
	MaxFeeRateBps = 1000

	// FeeDenominator converts basis points to a fraction (10000 = 100%).
	FeeDenominator = 10000
)

// MarketConfig holds the owner-mutable platform settings. The fee rate in
// effect at settlement time always applies, including to escrows locked
// under an earlier rate.
type MarketConfig struct {
	Owner        common.Address `json:"owner"`
	FeeRateBps   int64          `json:"fee_rate_bps"`
	FeeRecipient common.Address `json:"fee_recipient"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SplitFee computes the platform fee and seller payout for a locked amount.
// The fee rounds down, so fee + sellerAmount == amount exactly.
func SplitFee(amount, rateBps int64) (fee, sellerAmount int64) {
	fee = amount * rateBps / FeeDenominator
	return fee, amount - fee
}
