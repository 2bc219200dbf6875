// Command quotecheck prices a cart offline against a catalog document and
// optionally signs or verifies the resulting quote.
//
//	quotecheck -cart cart.json
//	quotecheck -catalog catalog.json -cart - < cart.json
//	quotecheck -cart cart.json -verify signed.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bundle-quote/internal/app"
	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/config"
	"github.com/noah-isme/bundle-quote/internal/obs"
	"github.com/noah-isme/bundle-quote/internal/pricing"
	"github.com/noah-isme/bundle-quote/internal/quote"
)

// errRejected marks a verification that did not come back valid.
var errRejected = errors.New("quote rejected")

type options struct {
	catalogPath string
	cartPath    string
	verifyPath  string
	ttlSeconds  int64
}

type report struct {
	NormalizedHash     string                      `json:"normalizedHash"`
	Quote              pricing.Result              `json:"quote"`
	Opportunities      []pricing.BundleOpportunity `json:"opportunities"`
	TotalDiscountCents pricing.Money               `json:"totalDiscountCents"`
	SignedQuote        *quote.SignedQuote          `json:"signedQuote,omitempty"`
}

type verification struct {
	Status  quote.Status `json:"status"`
	Valid   bool         `json:"valid"`
	Expired bool         `json:"expired"`
}

func main() {
	var opts options
	flag.StringVar(&opts.catalogPath, "catalog", "", "catalog JSON file (defaults to CATALOG_URL or CATALOG_PATH, then the embedded catalog)")
	flag.StringVar(&opts.cartPath, "cart", "-", "cart JSON file, - for stdin")
	flag.StringVar(&opts.verifyPath, "verify", "", "signed quote JSON file to verify against the cart")
	flag.Int64Var(&opts.ttlSeconds, "ttl", 0, "quote lifetime in seconds (defaults to QUOTE_TTL_SECONDS)")
	flag.Parse()

	logger := obs.NewLoggerTo(os.Stderr, "console", "info")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := run(context.Background(), cfg, opts, os.Stdin, os.Stdout, logger); err != nil {
		if errors.Is(err, errRejected) {
			os.Exit(1)
		}
		logger.Fatal().Err(err).Msg("quotecheck")
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, stdin io.Reader, stdout io.Writer, logger zerolog.Logger) error {
	source, _ := app.NewCatalogSource(cfg, nil, nil)
	if opts.catalogPath != "" {
		source = catalog.FileSource{Path: opts.catalogPath}
	}
	c, err := catalog.NewCached(source).Get(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	raw, err := readInput(opts.cartPath, stdin)
	if err != nil {
		return fmt.Errorf("read cart: %w", err)
	}
	lines, err := decodeLines(raw)
	if err != nil {
		return fmt.Errorf("decode cart: %w", err)
	}
	items, err := cart.Normalizer{MaxLines: cfg.CartMaxLines}.Normalize(lines)
	if err != nil {
		return err
	}
	analysis, err := pricing.NewEngine(c).Analyze(items)
	if err != nil {
		return err
	}

	signer := quote.NewSigner(quote.SignerConfig{
		Secret:  cfg.SigningSecret,
		Version: cfg.PayloadVersion,
		TTL:     cfg.QuoteTTL,
	})
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if opts.verifyPath != "" {
		data, err := os.ReadFile(opts.verifyPath)
		if err != nil {
			return fmt.Errorf("read signed quote: %w", err)
		}
		var signed quote.SignedQuote
		if err := json.Unmarshal(data, &signed); err != nil {
			return fmt.Errorf("decode signed quote: %w", err)
		}
		now := signer.Now()
		status := signer.Classify(items, analysis, signed.Signature, &signed.Metadata, now)
		if err := enc.Encode(verification{
			Status:  status,
			Valid:   status == quote.StatusValid,
			Expired: quote.IsExpired(&signed.Metadata, now),
		}); err != nil {
			return err
		}
		if status != quote.StatusValid {
			return fmt.Errorf("%w: %s", errRejected, status)
		}
		return nil
	}

	out := report{
		NormalizedHash:     cart.Hash(items),
		Quote:              analysis.Quote,
		Opportunities:      analysis.Opportunities,
		TotalDiscountCents: analysis.TotalDiscountCents,
	}
	if cfg.SigningSecret != "" {
		signed, err := signer.Sign(items, analysis, quote.Options{TTLSeconds: opts.ttlSeconds})
		if err != nil {
			return err
		}
		out.SignedQuote = &signed
		logger.Info().Time("expires_at", time.UnixMilli(signed.Metadata.ExpiresAt)).Msg("quote signed")
	} else {
		logger.Warn().Msg("QUOTE_SIGNING_SECRET not set; printing unsigned analysis")
	}
	return enc.Encode(out)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeLines accepts either a bare array of lines or an {"items": [...]} envelope.
func decodeLines(raw []byte) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var lines []json.RawMessage
		err := json.Unmarshal(raw, &lines)
		return lines, err
	}
	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Items == nil {
		return nil, errors.New("missing items array")
	}
	return envelope.Items, nil
}
