package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Category classifies the artifact a listing offers.
type Category string

const (
	CategorySkill   Category = "skill"
	CategoryPrompt  Category = "prompt"
	CategoryData    Category = "data"
	CategoryContent Category = "content"
	CategoryService Category = "service"
)

// ValidCategory reports whether c is one of the fixed artifact categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySkill, CategoryPrompt, CategoryData, CategoryContent, CategoryService:
		return true
	default:
		return false
	}
}

// ListingStatus represents the trading lifecycle state of a listing.
//
// Active is the only state a listing can be purchased or cancelled in. Sold
// and Cancelled are terminal. Disputed is entered from an active trade and,
// mirroring the source contract, is never left: arbitration clears the escrow
// but leaves the status as Disputed. Use Escrow.Active to tell whether a
// disputed trade has been paid out.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusDisputed  ListingStatus = "disputed"
)

// Listing is a seller's offer to trade one artifact at a fixed price.
// Price is denominated in the smallest currency unit. MetadataRef is an
// opaque pointer (typically a content-addressed URI) that the core never
// parses. Buyer is the zero address until a purchase occurs; SoldAt is nil
// until settlement.
type Listing struct {
	ID          int64          `json:"id"`
	Seller      common.Address `json:"seller"`
	Price       int64          `json:"price"`
	Category    Category       `json:"category"`
	MetadataRef string         `json:"metadata_ref"`
	Status      ListingStatus  `json:"status"`
	Buyer       common.Address `json:"buyer"`
	CreatedAt   time.Time      `json:"created_at"`
	SoldAt      *time.Time     `json:"sold_at,omitempty"`
}

// HasBuyer reports whether a buyer has been assigned.
func (l Listing) HasBuyer() bool {
	return l.Buyer != (common.Address{})
}
