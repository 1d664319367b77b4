package events

import "math/big"

const (
	// TypeRateSet is emitted when the currency registry accepts an update.
	TypeRateSet = "rates.set"

	// TypeLinkRequestAdded is emitted when a link request is stored.
	TypeLinkRequestAdded = "link.request.added"
	// TypeLinkRequestAccepted is emitted when a request reaches quorum and
	// the mapping is committed.
	TypeLinkRequestAccepted = "link.request.accepted"
	// TypeLinkRequestExpired is emitted when tallying an expired request.
	TypeLinkRequestExpired = "link.request.expired"
	// TypeLinkRemoved is emitted when a mapping is cleared.
	TypeLinkRemoved = "link.removed"

	// TypeShopAdded / TypeShopUpdated / TypeShopStatusChanged track the
	// shop registry.
	TypeShopAdded         = "shop.added"
	TypeShopUpdated       = "shop.updated"
	TypeShopStatusChanged = "shop.statusChanged"
)

// RateSet captures an accepted currency rate update.
type RateSet struct {
	Height  uint64
	Symbols []string
	Rates   []*big.Int
}

func (RateSet) EventType() string { return TypeRateSet }

// LinkRequestAdded captures a stored identity link request.
type LinkRequestAdded struct {
	RequestID    [32]byte
	IdentityHash [32]byte
	Account      [20]byte
}

func (LinkRequestAdded) EventType() string { return TypeLinkRequestAdded }

// LinkRequestAccepted captures a committed identity mapping.
type LinkRequestAccepted struct {
	RequestID    [32]byte
	IdentityHash [32]byte
	Account      [20]byte
	Votes        int
}

func (LinkRequestAccepted) EventType() string { return TypeLinkRequestAccepted }

// LinkRequestExpired captures a request abandoned past its expiry.
type LinkRequestExpired struct {
	RequestID    [32]byte
	IdentityHash [32]byte
	Account      [20]byte
}

func (LinkRequestExpired) EventType() string { return TypeLinkRequestExpired }

// LinkRemoved captures a cleared identity mapping.
type LinkRemoved struct {
	IdentityHash [32]byte
	Account      [20]byte
}

func (LinkRemoved) EventType() string { return TypeLinkRemoved }

// ShopAdded captures a newly registered shop.
type ShopAdded struct {
	ShopID   [32]byte
	Name     string
	Currency string
	Account  [20]byte
}

func (ShopAdded) EventType() string { return TypeShopAdded }

// ShopUpdated captures a shop metadata update.
type ShopUpdated struct {
	ShopID         [32]byte
	Name           string
	Currency       string
	ProvidePercent uint8
}

func (ShopUpdated) EventType() string { return TypeShopUpdated }

// ShopStatusChanged captures a shop status transition.
type ShopStatusChanged struct {
	ShopID [32]byte
	Status uint8
}

func (ShopStatusChanged) EventType() string { return TypeShopStatusChanged }
