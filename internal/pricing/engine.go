package pricing

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/catalog"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Catalog is the read-only view of the product catalog the engine prices against.
type Catalog interface {
	CurrencyCode() string
	UnitPriceCents(variantID string) (int64, error)
	Variant(id string) (catalog.VariantEntry, bool)
	Collection(id string) (*catalog.Collection, bool)
}

// LineBreakdown is the priced form of a single cart line.
type LineBreakdown struct {
	Item           cart.LineItem `json:"item"`
	UnitPriceCents Money         `json:"unitPriceCents"`
	SubtotalCents  Money         `json:"subtotalCents"`
}

// AppliedBundle records how many times a tier matched within a collection.
type AppliedBundle struct {
	TierMinQty          int64 `json:"tierMinQty"`
	BundleCount         int64 `json:"bundleCount"`
	TierTotalPriceCents Money `json:"tierTotalPriceCents"`
}

// CollectionDiscount is the bundle saving achieved by one collection.
type CollectionDiscount struct {
	CollectionID   string          `json:"collectionId"`
	AppliedBundles []AppliedBundle `json:"appliedBundles"`
	DiscountCents  Money           `json:"discountCents"`
}

// Result is a priced cart quote.
type Result struct {
	Currency              string               `json:"currency"`
	LineItems             []LineBreakdown      `json:"lineItems"`
	PreDiscountTotalCents Money                `json:"preDiscountTotalCents"`
	Discounts             []CollectionDiscount `json:"discounts"`
	GrandTotalCents       Money                `json:"grandTotalCents"`
}

// TotalDiscountCents sums the per-collection discounts.
func (r Result) TotalDiscountCents() Money {
	var total Money
	for _, d := range r.Discounts {
		total += d.DiscountCents
	}
	return total
}

// Engine prices carts against an injected catalog.
type Engine struct {
	catalog Catalog
}

// NewEngine constructs a pricing engine.
func NewEngine(c Catalog) *Engine {
	return &Engine{catalog: c}
}

// collectionAggregate accumulates a collection's quantity and regular price across lines.
type collectionAggregate struct {
	collection      *catalog.Collection
	qty             int64
	regularSumCents Money
	bundles         []AppliedBundle
	discountCents   Money
}

// PriceCart computes line subtotals, bundle discounts and totals. Unknown variants,
// and variants claimed for a known collection they do not belong to, fail with
// catalog.ErrUnknownVariant.
func (e *Engine) PriceCart(items []cart.LineItem) (Result, error) {
	result, _, err := e.price(items)
	return result, err
}

func (e *Engine) price(items []cart.LineItem) (Result, []*collectionAggregate, error) {
	result := Result{
		Currency:  e.catalog.CurrencyCode(),
		LineItems: make([]LineBreakdown, 0, len(items)),
		Discounts: []CollectionDiscount{},
	}
	byCollection := make(map[string]*collectionAggregate)
	for _, it := range items {
		unit, err := e.catalog.UnitPriceCents(it.VariantID)
		if err != nil {
			return Result{}, nil, err
		}
		subtotal := unit * it.Qty
		result.LineItems = append(result.LineItems, LineBreakdown{Item: it, UnitPriceCents: unit, SubtotalCents: subtotal})
		result.PreDiscountTotalCents += subtotal

		agg, ok := byCollection[it.CollectionID]
		if !ok {
			col, known := e.catalog.Collection(it.CollectionID)
			if !known {
				continue
			}
			agg = &collectionAggregate{collection: col}
			byCollection[it.CollectionID] = agg
		}
		if entry, found := e.catalog.Variant(it.VariantID); found && entry.CollectionID != it.CollectionID {
			return Result{}, nil, fmt.Errorf("%w: %q is not in collection %q", catalog.ErrUnknownVariant, it.VariantID, it.CollectionID)
		}
		agg.qty += it.Qty
		agg.regularSumCents += subtotal
	}

	aggregates := make([]*collectionAggregate, 0, len(byCollection))
	for _, agg := range byCollection {
		aggregates = append(aggregates, agg)
	}
	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].collection.ID < aggregates[j].collection.ID
	})

	var discountTotal Money
	for _, agg := range aggregates {
		applyBundles(agg)
		if agg.discountCents <= 0 {
			continue
		}
		discountTotal += agg.discountCents
		result.Discounts = append(result.Discounts, CollectionDiscount{
			CollectionID:   agg.collection.ID,
			AppliedBundles: agg.bundles,
			DiscountCents:  agg.discountCents,
		})
	}
	result.GrandTotalCents = result.PreDiscountTotalCents - discountTotal
	return result, aggregates, nil
}

// applyBundles allocates tiers greedily, largest MinQty first, and prices the
// remainder at the collection's weighted average regular unit price.
func applyBundles(agg *collectionAggregate) {
	agg.bundles = []AppliedBundle{}
	if agg.qty <= 0 || len(agg.collection.Tiers) == 0 {
		return
	}
	remaining := agg.qty
	var bundled Money
	for _, tier := range agg.collection.TiersDescending() {
		count := remaining / tier.MinQty
		if count <= 0 {
			continue
		}
		bundled += count * tier.TotalPriceCents
		remaining -= count * tier.MinQty
		agg.bundles = append(agg.bundles, AppliedBundle{
			TierMinQty:          tier.MinQty,
			BundleCount:         count,
			TierTotalPriceCents: tier.TotalPriceCents,
		})
	}
	leftover := mulDivRound(agg.regularSumCents, remaining, agg.qty)
	discount := agg.regularSumCents - (bundled + leftover)
	if discount < 0 {
		discount = 0
	}
	if discount > agg.regularSumCents {
		discount = agg.regularSumCents
	}
	agg.discountCents = discount
}

// mulDivRound returns a*b/d rounded half away from zero, using a 128-bit
// intermediate product. a and b must be non-negative, d positive and b <= d.
func mulDivRound(a, b, d int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, r := bits.Div64(hi, lo, uint64(d))
	if 2*r >= uint64(d) {
		q++
	}
	return int64(q)
}
