// Package tiers defines the donation tiers offered at the end of the demo.
// Each tier has a minimum amount; checkout rejects anything below it.
package tiers

import (
	"errors"
	"fmt"
	"sort"
)

// TierID identifies a donation tier.
type TierID string

const (
	TierSupporter      TierID = "supporter"
	TierBacker         TierID = "backer"
	TierPatron         TierID = "patron"
	TierFoundingCircle TierID = "founding-circle"
)

var (
	// ErrUnknownTier is returned for an id not in the catalog.
	ErrUnknownTier = errors.New("tiers: unknown tier")
	// ErrBelowMinimum is returned when the amount is under the tier minimum.
	ErrBelowMinimum = errors.New("tiers: amount below tier minimum")
)

// MaxAmountCents caps a single donation.
const MaxAmountCents int64 = 10_000_000

// Tier is one donation tier.
type Tier struct {
	ID          TierID   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MinCents    int64    `json:"minCents"`
	Perks       []string `json:"perks"`
}

var (
	Supporter = Tier{
		ID:          TierSupporter,
		Name:        "Supporter",
		Description: "Keep the lights on",
		MinCents:    2500,
		Perks:       []string{"name_in_credits"},
	}

	Backer = Tier{
		ID:          TierBacker,
		Name:        "Backer",
		Description: "Early access to pilot workflows",
		MinCents:    10_000,
		Perks:       []string{"name_in_credits", "pilot_waitlist"},
	}

	Patron = Tier{
		ID:          TierPatron,
		Name:        "Patron",
		Description: "Quarterly roadmap briefings",
		MinCents:    50_000,
		Perks:       []string{"name_in_credits", "pilot_waitlist", "roadmap_briefings"},
	}

	FoundingCircle = Tier{
		ID:          TierFoundingCircle,
		Name:        "Founding Circle",
		Description: "A seat at the design table",
		MinCents:    250_000,
		Perks:       []string{"name_in_credits", "pilot_waitlist", "roadmap_briefings", "design_council"},
	}

	// AllTiers contains every tier.
	AllTiers = map[TierID]Tier{
		TierSupporter:      Supporter,
		TierBacker:         Backer,
		TierPatron:         Patron,
		TierFoundingCircle: FoundingCircle,
	}
)

// Get returns a copy of a tier by id, or nil if not found.
func Get(id TierID) *Tier {
	tier, ok := AllTiers[id]
	if !ok {
		return nil
	}
	tier.Perks = append([]string(nil), tier.Perks...)
	return &tier
}

// List returns every tier ordered by minimum amount.
func List() []Tier {
	out := make([]Tier, 0, len(AllTiers))
	for id := range AllTiers {
		out = append(out, *Get(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinCents < out[j].MinCents })
	return out
}

// Validate checks that amountCents is acceptable for the tier.
func Validate(id TierID, amountCents int64) (*Tier, error) {
	tier := Get(id)
	if tier == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, id)
	}
	if amountCents < tier.MinCents {
		return nil, fmt.Errorf("%w: %s requires at least %d cents", ErrBelowMinimum, tier.Name, tier.MinCents)
	}
	if amountCents > MaxAmountCents {
		return nil, fmt.Errorf("tiers: amount %d exceeds maximum %d", amountCents, MaxAmountCents)
	}
	return tier, nil
}

// HasPerk checks if a tier includes a perk.
func (t *Tier) HasPerk(perk string) bool {
	for _, p := range t.Perks {
		if p == perk {
			return true
		}
	}
	return false
}
