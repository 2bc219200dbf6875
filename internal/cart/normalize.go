package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/bundle-quote/internal/common"
)

const (
	// DefaultMaxLines bounds the number of raw lines accepted in one cart.
	DefaultMaxLines = 100
	// MaxLineQty is the largest quantity a single line may carry.
	MaxLineQty = 10_000
)

// ErrTooManyLines is returned when a cart exceeds the configured line limit.
var ErrTooManyLines = errors.New("cart: too many lines")

// LineItem is a single (collection, variant, quantity) cart line.
type LineItem struct {
	CollectionID string `json:"collectionId"`
	VariantID    string `json:"variantId"`
	Qty          int64  `json:"qty"`
}

// Normalizer turns untrusted cart input into a canonical list of line items.
type Normalizer struct {
	MaxLines int
}

// Normalize decodes raw JSON lines, drops malformed ones and sorts the remainder.
func (n Normalizer) Normalize(raw []json.RawMessage) ([]LineItem, error) {
	limit := n.MaxLines
	if limit <= 0 {
		limit = DefaultMaxLines
	}
	if len(raw) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyLines, len(raw), limit)
	}
	return Normalize(Decode(raw)), nil
}

// Decode converts raw JSON lines into line items. Lines that are not objects or whose
// quantity cannot be coerced to a positive whole number are dropped.
func Decode(raw []json.RawMessage) []LineItem {
	out := make([]LineItem, 0, len(raw))
	for _, line := range raw {
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil || fields == nil {
			continue
		}
		qtyValue, ok := fields["qty"]
		if !ok {
			qtyValue = fields["quantity"]
		}
		qty, ok := coerceQty(qtyValue)
		if !ok {
			continue
		}
		out = append(out, LineItem{
			CollectionID: stringField(fields["collectionId"]),
			VariantID:    stringField(fields["variantId"]),
			Qty:          qty,
		})
	}
	return out
}

// Normalize filters ill-formed lines and orders the rest by collection, variant
// and quantity. Duplicate (collection, variant) pairs are kept as separate lines.
func Normalize(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		it.CollectionID = strings.TrimSpace(it.CollectionID)
		it.VariantID = strings.TrimSpace(it.VariantID)
		if it.CollectionID == "" || it.VariantID == "" {
			continue
		}
		if it.Qty <= 0 || it.Qty > MaxLineQty {
			continue
		}
		out = append(out, it)
	}

	col := collators.Get().(*collate.Collator)
	defer collators.Put(col)
	sort.SliceStable(out, func(i, j int) bool {
		if c := compare(col, out[i].CollectionID, out[j].CollectionID); c != 0 {
			return c < 0
		}
		if c := compare(col, out[i].VariantID, out[j].VariantID); c != 0 {
			return c < 0
		}
		return out[i].Qty < out[j].Qty
	})
	return out
}

// Hash fingerprints normalized items.
func Hash(items []LineItem) string {
	if items == nil {
		items = []LineItem{}
	}
	data, _ := json.Marshal(items)
	return common.SHA256Hex(data)
}

var collators = sync.Pool{New: func() any { return collate.New(language.Und) }}

// compare orders by locale collation and falls back to byte order so that
// collation-equal strings still sort deterministically.
func compare(col *collate.Collator, a, b string) int {
	if c := col.CompareString(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func coerceQty(value any) (int64, bool) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f <= 0 || f > MaxLineQty {
		return 0, false
	}
	return int64(f), true
}

func stringField(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
