package domain

import "sort"

// BidPack is a purchasable bundle of bid credits. Prices are owned by the server.
type BidPack struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BidCredits      int64  `json:"bid_credits"`
	BonusCredits    int64  `json:"bonus_credits"`
	PriceMinorUnits int64  `json:"price_minor_units"`
}

// TotalCredits is what a completed purchase grants.
func (p BidPack) TotalCredits() int64 {
	return p.BidCredits + p.BonusCredits
}

// BidPackCatalog is an immutable lookup of packs by id.
type BidPackCatalog struct {
	packs map[string]BidPack
}

// NewBidPackCatalog copies packs into a catalog. Later duplicates override earlier ones.
func NewBidPackCatalog(packs ...BidPack) *BidPackCatalog {
	c := &BidPackCatalog{packs: make(map[string]BidPack, len(packs))}
	for _, p := range packs {
		c.packs[p.ID] = p
	}
	return c
}

// DefaultBidPacks is the production catalog.
func DefaultBidPacks() *BidPackCatalog {
	return NewBidPackCatalog(
		BidPack{ID: "starter", Name: "Starter Pack", BidCredits: 10, BonusCredits: 0, PriceMinorUnits: 999},
		BidPack{ID: "pro", Name: "Pro Pack", BidCredits: 25, BonusCredits: 5, PriceMinorUnits: 1999},
		BidPack{ID: "business", Name: "Business Pack", BidCredits: 60, BonusCredits: 15, PriceMinorUnits: 3999},
		BidPack{ID: "enterprise", Name: "Enterprise Pack", BidCredits: 150, BonusCredits: 50, PriceMinorUnits: 7999},
	)
}

// Lookup returns the pack with the given id.
func (c *BidPackCatalog) Lookup(id string) (BidPack, bool) {
	p, ok := c.packs[id]
	return p, ok
}

// List returns the packs ordered by price.
func (c *BidPackCatalog) List() []BidPack {
	out := make([]BidPack, 0, len(c.packs))
	for _, p := range c.packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceMinorUnits == out[j].PriceMinorUnits {
			return out[i].ID < out[j].ID
		}
		return out[i].PriceMinorUnits < out[j].PriceMinorUnits
	})
	return out
}
