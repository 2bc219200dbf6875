package quote

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/pricing"
)

const signerCatalog = `{
  "currency": "cad",
  "collections": [{
    "id": "necklaces", "title": "Necklaces", "basePriceCents": 1200,
    "variants": [{"id": "necklace-red"}, {"id": "necklace-green"}],
    "tieredPricing": [{"minQty": 4, "totalPriceCents": 3600}]
  }, {
    "id": "earrings", "title": "Earrings", "basePriceCents": 1000,
    "variants": [{"id": "earring-gold"}]
  }]
}`

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*pricing.Engine, *Signer) {
	t.Helper()
	c, err := catalog.Parse([]byte(signerCatalog))
	require.NoError(t, err)
	signer := NewSigner(SignerConfig{Secret: "test-secret", Now: func() time.Time { return fixedNow }})
	return pricing.NewEngine(c), signer
}

func sampleItems() []cart.LineItem {
	return cart.Normalize([]cart.LineItem{
		{CollectionID: "necklaces", VariantID: "necklace-red", Qty: 2},
		{CollectionID: "necklaces", VariantID: "necklace-green", Qty: 2},
		{CollectionID: "earrings", VariantID: "earring-gold", Qty: 1},
	})
}

func TestSignDefaults(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)

	signed, err := signer.Sign(items, analysis, Options{})
	require.NoError(t, err)
	require.Equal(t, "1", signed.Metadata.Version)
	require.EqualValues(t, 600, signed.Metadata.TTLSeconds)
	require.Equal(t, fixedNow.UnixMilli(), signed.Metadata.IssuedAt)
	require.Equal(t, fixedNow.UnixMilli()+600_000, signed.Metadata.ExpiresAt)
	require.Len(t, signed.Signature, 64)
	require.True(t, strings.HasPrefix(signed.Payload, `{"version":"1","issuedAt":`))
	require.Contains(t, signed.Payload, `"totals":{"preDiscountTotalCents":5800,"grandTotalCents":4600,"totalDiscountCents":1200,"discounts":[{"collectionId":"necklaces","discountCents":1200}]}`)
	require.NotContains(t, signed.Payload, "appliedBundles")
}

func TestSignOptionsOverride(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)

	issued := int64(1_000)
	signed, err := signer.Sign(items, analysis, Options{IssuedAt: &issued, TTLSeconds: 30, Version: "2"})
	require.NoError(t, err)
	require.Equal(t, Metadata{Version: "2", IssuedAt: 1_000, ExpiresAt: 31_000, TTLSeconds: 30}, signed.Metadata)
}

func TestSignRequiresSecret(t *testing.T) {
	engine, _ := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)

	_, err = NewSigner(SignerConfig{}).Sign(items, analysis, Options{})
	require.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestVerifyRoundTripAndExpiry(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)
	signed, err := signer.Sign(items, analysis, Options{})
	require.NoError(t, err)

	require.True(t, signer.Verify(items, analysis, signed.Signature, &signed.Metadata))
	require.Equal(t, StatusValid, signer.Classify(items, analysis, signed.Signature, &signed.Metadata, fixedNow))

	after := time.UnixMilli(signed.Metadata.ExpiresAt + 1)
	require.True(t, IsExpired(&signed.Metadata, after))
	require.Equal(t, StatusExpired, signer.Classify(items, analysis, signed.Signature, &signed.Metadata, after))
}

func TestVerifyDetectsTampering(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)
	signed, err := signer.Sign(items, analysis, Options{})
	require.NoError(t, err)

	tampered := analysis
	tampered.Quote.Discounts = append([]pricing.CollectionDiscount(nil), analysis.Quote.Discounts...)
	tampered.Quote.Discounts[0].DiscountCents += 100
	require.False(t, signer.Verify(items, tampered, signed.Signature, &signed.Metadata))

	later := time.UnixMilli(signed.Metadata.ExpiresAt + 60_000)
	require.Equal(t, StatusTampered, signer.Classify(items, tampered, signed.Signature, &signed.Metadata, later))

	moreItems := append([]cart.LineItem(nil), items...)
	moreItems[0].Qty++
	require.False(t, signer.Verify(moreItems, analysis, signed.Signature, &signed.Metadata))

	meta := signed.Metadata
	meta.ExpiresAt += 3_600_000
	require.False(t, signer.Verify(items, analysis, signed.Signature, &meta))
}

func TestVerifyIgnoresAppliedBundleDetail(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)
	signed, err := signer.Sign(items, analysis, Options{})
	require.NoError(t, err)

	reformatted := analysis
	reformatted.Quote.Discounts = []pricing.CollectionDiscount{{
		CollectionID:  analysis.Quote.Discounts[0].CollectionID,
		DiscountCents: analysis.Quote.Discounts[0].DiscountCents,
	}}
	require.True(t, signer.Verify(items, reformatted, signed.Signature, &signed.Metadata))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	engine, signer := newFixture(t)
	items := sampleItems()
	analysis, err := engine.Analyze(items)
	require.NoError(t, err)
	signed, err := signer.Sign(items, analysis, Options{})
	require.NoError(t, err)

	require.False(t, signer.Verify(items, analysis, "", &signed.Metadata))
	require.False(t, signer.Verify(items, analysis, signed.Signature, nil))
	require.False(t, signer.Verify(items, analysis, "zz"+signed.Signature[2:], &signed.Metadata))
	require.False(t, signer.Verify(items, analysis, signed.Signature[:62], &signed.Metadata))
	require.False(t, signer.Verify(items, analysis, signed.Signature+"00", &signed.Metadata))

	broken := signed.Metadata
	broken.TTLSeconds = 0
	require.False(t, signer.Verify(items, analysis, signed.Signature, &broken))

	other := NewSigner(SignerConfig{Secret: "other-secret", Now: func() time.Time { return fixedNow }})
	require.False(t, other.Verify(items, analysis, signed.Signature, &signed.Metadata))
	require.False(t, NewSigner(SignerConfig{}).Verify(items, analysis, signed.Signature, &signed.Metadata))
}

func TestSignatureIndependentOfInputOrder(t *testing.T) {
	engine, signer := newFixture(t)
	forward := cart.Normalize([]cart.LineItem{
		{CollectionID: "necklaces", VariantID: "necklace-red", Qty: 2},
		{CollectionID: "earrings", VariantID: "earring-gold", Qty: 1},
		{CollectionID: "necklaces", VariantID: "necklace-green", Qty: 2},
		{CollectionID: "necklaces", VariantID: "necklace-red", Qty: 1},
	})
	backward := cart.Normalize([]cart.LineItem{
		{CollectionID: "necklaces", VariantID: "necklace-red", Qty: 1},
		{CollectionID: "necklaces", VariantID: "necklace-green", Qty: 2},
		{CollectionID: "necklaces", VariantID: "necklace-red", Qty: 2},
		{CollectionID: "earrings", VariantID: "earring-gold", Qty: 1},
	})
	a1, err := engine.Analyze(forward)
	require.NoError(t, err)
	a2, err := engine.Analyze(backward)
	require.NoError(t, err)

	s1, err := signer.Sign(forward, a1, Options{})
	require.NoError(t, err)
	s2, err := signer.Sign(backward, a2, Options{})
	require.NoError(t, err)
	require.Equal(t, s1.Payload, s2.Payload)
	require.Equal(t, s1.Signature, s2.Signature)
}

func TestIsExpiredBoundaries(t *testing.T) {
	meta := &Metadata{Version: "1", IssuedAt: 1_000, ExpiresAt: 601_000, TTLSeconds: 600}
	require.True(t, IsExpired(meta, time.UnixMilli(meta.ExpiresAt+1)))
	require.False(t, IsExpired(meta, time.UnixMilli(meta.ExpiresAt-1)))
	require.False(t, IsExpired(meta, time.UnixMilli(meta.ExpiresAt)))
	require.True(t, IsExpired(nil, time.UnixMilli(0)))
	require.True(t, IsExpired(&Metadata{Version: "1", IssuedAt: 5, ExpiresAt: 5, TTLSeconds: 1}, time.UnixMilli(0)))
}

func TestEmptyCartSigns(t *testing.T) {
	engine, signer := newFixture(t)
	analysis, err := engine.Analyze(nil)
	require.NoError(t, err)
	signed, err := signer.Sign(nil, analysis, Options{})
	require.NoError(t, err)
	require.Contains(t, signed.Payload, `"items":[]`)
	require.True(t, signer.Verify([]cart.LineItem{}, analysis, signed.Signature, &signed.Metadata))
}
