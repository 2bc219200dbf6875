package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrUnknownVariant is returned when a variant id is not present in the catalog.
	ErrUnknownVariant = errors.New("catalog: unknown variant")
	// ErrInvalidCatalog indicates the catalog document failed validation.
	ErrInvalidCatalog = errors.New("catalog: invalid document")
)

// Upper bounds that keep cart arithmetic within int64.
const (
	MaxPriceCents = 10_000_000_000
	MaxTierMinQty = 1_000_000
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

// Tier is a quantity-tiered bundle price.
type Tier struct {
	MinQty          int64  `json:"minQty"`
	TotalPriceCents int64  `json:"totalPriceCents"`
	Note            string `json:"note,omitempty"`
}

// Variant is a purchasable item inside a collection.
type Variant struct {
	ID                 string `json:"id"`
	Name               string `json:"name,omitempty"`
	Color              string `json:"color,omitempty"`
	ImageURL           string `json:"imageUrl,omitempty"`
	PriceOverrideCents *int64 `json:"priceOverrideCents,omitempty"`
}

// Collection groups variants that share a base price and bundle tiers.
type Collection struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	BasePriceCents int64     `json:"basePriceCents"`
	Variants       []Variant `json:"variants"`
	Tiers          []Tier    `json:"tieredPricing,omitempty"`
}

// VariantEntry is a variant resolved together with its parent collection.
type VariantEntry struct {
	Variant
	CollectionID   string
	BasePriceCents int64
}

// UnitPriceCents resolves the override rule for this variant.
func (v VariantEntry) UnitPriceCents() int64 {
	if v.PriceOverrideCents != nil {
		return *v.PriceOverrideCents
	}
	return v.BasePriceCents
}

// Catalog is an immutable product catalog with derived lookup maps.
type Catalog struct {
	Currency    string       `json:"currency"`
	Collections []Collection `json:"collections"`

	variants    map[string]VariantEntry
	collections map[string]*Collection
}

// Parse decodes and validates a catalog document and builds its lookup maps.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
	if !currencyPattern.MatchString(c.Currency) {
		return fmt.Errorf("%w: currency %q is not an ISO 4217 code", ErrInvalidCatalog, c.Currency)
	}
	c.variants = make(map[string]VariantEntry)
	c.collections = make(map[string]*Collection, len(c.Collections))
	for i := range c.Collections {
		col := &c.Collections[i]
		if strings.TrimSpace(col.ID) == "" {
			return fmt.Errorf("%w: collection at index %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := c.collections[col.ID]; dup {
			return fmt.Errorf("%w: duplicate collection %q", ErrInvalidCatalog, col.ID)
		}
		if col.BasePriceCents < 0 || col.BasePriceCents > MaxPriceCents {
			return fmt.Errorf("%w: collection %q has an out of range base price", ErrInvalidCatalog, col.ID)
		}
		for _, tier := range col.Tiers {
			if tier.MinQty <= 0 || tier.MinQty > MaxTierMinQty || tier.TotalPriceCents < 0 || tier.TotalPriceCents > MaxPriceCents {
				return fmt.Errorf("%w: collection %q has an invalid tier", ErrInvalidCatalog, col.ID)
			}
		}
		c.collections[col.ID] = col
		for _, v := range col.Variants {
			if strings.TrimSpace(v.ID) == "" {
				return fmt.Errorf("%w: collection %q has a variant without id", ErrInvalidCatalog, col.ID)
			}
			if _, dup := c.variants[v.ID]; dup {
				return fmt.Errorf("%w: duplicate variant %q", ErrInvalidCatalog, v.ID)
			}
			if v.PriceOverrideCents != nil && (*v.PriceOverrideCents < 0 || *v.PriceOverrideCents > MaxPriceCents) {
				return fmt.Errorf("%w: variant %q has an out of range price override", ErrInvalidCatalog, v.ID)
			}
			c.variants[v.ID] = VariantEntry{Variant: v, CollectionID: col.ID, BasePriceCents: col.BasePriceCents}
		}
	}
	return nil
}

// CurrencyCode returns the lowercase ISO 4217 code shared by the catalog.
func (c *Catalog) CurrencyCode() string { return c.Currency }

// Variant looks up a variant by id.
func (c *Catalog) Variant(id string) (VariantEntry, bool) {
	v, ok := c.variants[id]
	return v, ok
}

// Collection looks up a collection by id.
func (c *Catalog) Collection(id string) (*Collection, bool) {
	col, ok := c.collections[id]
	return col, ok
}

// UnitPriceCents returns the price of a single unit of the variant.
func (c *Catalog) UnitPriceCents(variantID string) (int64, error) {
	v, ok := c.variants[variantID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVariant, variantID)
	}
	return v.UnitPriceCents(), nil
}

// TiersDescending returns the tiers ordered by MinQty, largest first.
func (col *Collection) TiersDescending() []Tier {
	tiers := append([]Tier(nil), col.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinQty > tiers[j].MinQty })
	return tiers
}

// TiersAscending returns the tiers ordered by MinQty, smallest first.
func (col *Collection) TiersAscending() []Tier {
	tiers := append([]Tier(nil), col.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinQty < tiers[j].MinQty })
	return tiers
}
