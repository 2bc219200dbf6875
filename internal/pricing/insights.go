package pricing

import "github.com/noah-isme/bundle-quote/internal/cart"

// NextTier describes the smallest tier the cart has not reached yet.
type NextTier struct {
	MinQty                int64  `json:"minQty"`
	MissingQty            int64  `json:"missingQty"`
	TotalPriceCents       Money  `json:"totalPriceCents"`
	PotentialSavingsCents Money  `json:"potentialSavingsCents"`
	Note                  string `json:"note,omitempty"`
}

// BundleOpportunity is the upsell summary for one collection in the cart.
type BundleOpportunity struct {
	CollectionID   string          `json:"collectionId"`
	Title          string          `json:"title"`
	Quantity       int64           `json:"quantity"`
	DiscountCents  Money           `json:"discountCents"`
	AppliedBundles []AppliedBundle `json:"appliedBundles"`
	NextTier       *NextTier       `json:"nextTier,omitempty"`
}

// Analysis pairs a quote with per-collection upsell hints.
type Analysis struct {
	Quote              Result              `json:"quote"`
	Opportunities      []BundleOpportunity `json:"opportunities"`
	TotalDiscountCents Money               `json:"totalDiscountCents"`
}

// Analyze prices the cart and reports, for every collection present, how far the
// cart is from the next bundle tier.
func (e *Engine) Analyze(items []cart.LineItem) (Analysis, error) {
	quote, aggregates, err := e.price(items)
	if err != nil {
		return Analysis{}, err
	}
	analysis := Analysis{
		Quote:              quote,
		Opportunities:      make([]BundleOpportunity, 0, len(aggregates)),
		TotalDiscountCents: quote.TotalDiscountCents(),
	}
	for _, agg := range aggregates {
		opp := BundleOpportunity{
			CollectionID:   agg.collection.ID,
			Title:          agg.collection.Title,
			Quantity:       agg.qty,
			DiscountCents:  agg.discountCents,
			AppliedBundles: agg.bundles,
		}
		for _, tier := range agg.collection.TiersAscending() {
			if tier.MinQty <= agg.qty {
				continue
			}
			savings := tier.MinQty*agg.collection.BasePriceCents - tier.TotalPriceCents
			if savings < 0 {
				savings = 0
			}
			opp.NextTier = &NextTier{
				MinQty:                tier.MinQty,
				MissingQty:            tier.MinQty - agg.qty,
				TotalPriceCents:       tier.TotalPriceCents,
				PotentialSavingsCents: savings,
				Note:                  tier.Note,
			}
			break
		}
		analysis.Opportunities = append(analysis.Opportunities, opp)
	}
	return analysis, nil
}
