package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundle-quote/internal/config"
	"github.com/noah-isme/bundle-quote/internal/quote"
)

const cartJSON = `[
  {"collectionId":"earrings","variantId":"earring-gold","qty":2},
  {"collectionId":"earrings","variantId":"earring-pearl","qty":2},
  {"collectionId":"necklaces","variantId":"necklace-blue","qty":1}
]`

func testConfig(secret string) *config.Config {
	return &config.Config{SigningSecret: secret, PayloadVersion: "1", QuoteTTL: 10 * time.Minute, CartMaxLines: 10}
}

func TestRunPrintsSignedReport(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig("cli-secret"), options{cartPath: "-"}, strings.NewReader(cartJSON), &out, zerolog.Nop())
	require.NoError(t, err)

	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.EqualValues(t, 1100, rep.TotalDiscountCents)
	require.EqualValues(t, 2000+2800+1200-1100, rep.Quote.GrandTotalCents)
	require.Len(t, rep.NormalizedHash, 64)
	require.NotNil(t, rep.SignedQuote)
	require.Len(t, rep.SignedQuote.Signature, 64)
}

func TestRunWithoutSecretOmitsSignature(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(""), options{cartPath: "-"}, strings.NewReader(`{"items":`+cartJSON+`}`), &out, zerolog.Nop())
	require.NoError(t, err)
	require.NotContains(t, out.String(), "signedQuote")
}

func TestRunVerifiesSignedQuote(t *testing.T) {
	dir := t.TempDir()
	cartPath := filepath.Join(dir, "cart.json")
	require.NoError(t, os.WriteFile(cartPath, []byte(cartJSON), 0o600))

	var out bytes.Buffer
	cfg := testConfig("cli-secret")
	require.NoError(t, run(context.Background(), cfg, options{cartPath: cartPath}, nil, &out, zerolog.Nop()))
	var rep report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))

	signedPath := filepath.Join(dir, "signed.json")
	data, err := json.Marshal(rep.SignedQuote)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(signedPath, data, 0o600))

	out.Reset()
	require.NoError(t, run(context.Background(), cfg, options{cartPath: cartPath, verifyPath: signedPath}, nil, &out, zerolog.Nop()))
	var v verification
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	require.True(t, v.Valid)
	require.Equal(t, quote.StatusValid, v.Status)

	out.Reset()
	err = run(context.Background(), testConfig("other-secret"), options{cartPath: cartPath, verifyPath: signedPath}, nil, &out, zerolog.Nop())
	require.ErrorIs(t, err, errRejected)
	require.Contains(t, out.String(), `"tampered"`)
}

func TestRunRejectsMalformedCart(t *testing.T) {
	err := run(context.Background(), testConfig(""), options{cartPath: "-"}, strings.NewReader(`{"lines":[]}`), &bytes.Buffer{}, zerolog.Nop())
	require.ErrorContains(t, err, "missing items array")
}
