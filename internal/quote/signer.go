package quote

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/pricing"
)

const (
	// DefaultVersion is the payload version used when none is configured.
	DefaultVersion = "1"
	// DefaultTTL is the quote lifetime used when none is configured.
	DefaultTTL = 600 * time.Second
)

// ErrSecretNotConfigured is returned when signing without a signing secret.
var ErrSecretNotConfigured = errors.New("quote: signing secret not configured")

// Metadata carries the issue and expiry information bound into a signature.
// Timestamps are milliseconds since the Unix epoch.
type Metadata struct {
	Version    string `json:"version"`
	IssuedAt   int64  `json:"issuedAt"`
	ExpiresAt  int64  `json:"expiresAt"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

// Valid reports whether all fields are present and consistent.
func (m *Metadata) Valid() bool {
	if m == nil {
		return false
	}
	return strings.TrimSpace(m.Version) != "" &&
		m.TTLSeconds > 0 &&
		m.IssuedAt > 0 &&
		m.ExpiresAt > m.IssuedAt
}

// SignedQuote is the opaque token round-tripped by the client until checkout.
type SignedQuote struct {
	Signature string   `json:"signature"`
	Payload   string   `json:"payload"`
	Metadata  Metadata `json:"metadata"`
}

// Options override the signer defaults for a single quote.
type Options struct {
	IssuedAt   *int64
	TTLSeconds int64
	Version    string
}

// SignerConfig groups Signer dependencies.
type SignerConfig struct {
	Secret  string
	Version string
	TTL     time.Duration
	Now     func() time.Time
}

// Signer issues and verifies HMAC-SHA256 signed quotes.
type Signer struct {
	secret  []byte
	version string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner constructs a signer. An empty secret is accepted here and reported
// as ErrSecretNotConfigured when a quote is signed.
func NewSigner(cfg SignerConfig) *Signer {
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion
	}
	ttl := cfg.TTL
	if ttl < time.Second {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(cfg.Secret), version: version, ttl: ttl, now: now}
}

// Now returns the signer's clock reading.
func (s *Signer) Now() time.Time { return s.now() }

// Sign canonicalises the quote, binds metadata and computes its signature.
func (s *Signer) Sign(items []cart.LineItem, analysis pricing.Analysis, opts Options) (SignedQuote, error) {
	if len(s.secret) == 0 {
		return SignedQuote{}, ErrSecretNotConfigured
	}
	issuedAt := s.now().UnixMilli()
	if opts.IssuedAt != nil {
		issuedAt = *opts.IssuedAt
	}
	ttlSeconds := int64(s.ttl / time.Second)
	if opts.TTLSeconds > 0 {
		ttlSeconds = opts.TTLSeconds
	}
	version := s.version
	if v := strings.TrimSpace(opts.Version); v != "" {
		version = v
	}
	meta := Metadata{
		Version:    version,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt + ttlSeconds*1000,
		TTLSeconds: ttlSeconds,
	}
	payload, err := canonicalPayload(items, analysis, meta)
	if err != nil {
		return SignedQuote{}, err
	}
	return SignedQuote{
		Signature: hex.EncodeToString(s.mac(payload)),
		Payload:   string(payload),
		Metadata:  meta,
	}, nil
}

// Verify recomputes the signature for the claimed items and analysis and compares
// it in constant time. It never fails loudly: any problem yields false.
func (s *Signer) Verify(items []cart.LineItem, analysis pricing.Analysis, signature string, meta *Metadata) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || !meta.Valid() || len(s.secret) == 0 {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	payload, err := canonicalPayload(items, analysis, *meta)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, s.mac(payload))
}

// IsExpired reports whether metadata is unusable at the given instant.
func IsExpired(meta *Metadata, now time.Time) bool {
	if !meta.Valid() {
		return true
	}
	return now.UnixMilli() > meta.ExpiresAt
}

func (s *Signer) mac(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

type payloadDiscount struct {
	CollectionID  string        `json:"collectionId"`
	DiscountCents pricing.Money `json:"discountCents"`
}

type payloadTotals struct {
	PreDiscountTotalCents pricing.Money     `json:"preDiscountTotalCents"`
	GrandTotalCents       pricing.Money     `json:"grandTotalCents"`
	TotalDiscountCents    pricing.Money     `json:"totalDiscountCents"`
	Discounts             []payloadDiscount `json:"discounts"`
}

type payload struct {
	Version    string          `json:"version"`
	IssuedAt   int64           `json:"issuedAt"`
	ExpiresAt  int64           `json:"expiresAt"`
	TTLSeconds int64           `json:"ttlSeconds"`
	Items      []cart.LineItem `json:"items"`
	Totals     payloadTotals   `json:"totals"`
}

// canonicalPayload serialises the signed surface with a fixed key order. Applied
// bundle detail is left out so that only monetary fields are authenticated.
func canonicalPayload(items []cart.LineItem, analysis pricing.Analysis, meta Metadata) ([]byte, error) {
	if items == nil {
		items = []cart.LineItem{}
	}
	discounts := make([]payloadDiscount, 0, len(analysis.Quote.Discounts))
	for _, d := range analysis.Quote.Discounts {
		discounts = append(discounts, payloadDiscount{CollectionID: d.CollectionID, DiscountCents: d.DiscountCents})
	}
	return json.Marshal(payload{
		Version:    meta.Version,
		IssuedAt:   meta.IssuedAt,
		ExpiresAt:  meta.ExpiresAt,
		TTLSeconds: meta.TTLSeconds,
		Items:      items,
		Totals: payloadTotals{
			PreDiscountTotalCents: analysis.Quote.PreDiscountTotalCents,
			GrandTotalCents:       analysis.Quote.GrandTotalCents,
			TotalDiscountCents:    analysis.TotalDiscountCents,
			Discounts:             discounts,
		},
	})
}
