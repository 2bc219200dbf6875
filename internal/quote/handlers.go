package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/common"
	"github.com/noah-isme/bundle-quote/internal/obs"
	"github.com/noah-isme/bundle-quote/internal/pricing"
)

// CatalogProvider resolves the catalog the handlers price against.
type CatalogProvider interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
}

// Handler wires quoting and verification to HTTP.
type Handler struct {
	Catalog    CatalogProvider
	Normalizer cart.Normalizer
	Signer     *Signer
	Validate   *validator.Validate
	Logger     zerolog.Logger
}

type quoteRequest struct {
	Items      []json.RawMessage `json:"items" validate:"required"`
	TTLSeconds *int64            `json:"ttlSeconds" validate:"omitempty,min=1,max=86400"`
}

// verifyRequest keeps signature and metadata raw so that a malformed quote is
// reported as tampered rather than rejected.
type verifyRequest struct {
	Items     []json.RawMessage `json:"items" validate:"required"`
	Signature json.RawMessage   `json:"signature"`
	Metadata  json.RawMessage   `json:"metadata"`
}

func (p verifyRequest) signature() string {
	var sig string
	if err := json.Unmarshal(p.Signature, &sig); err != nil {
		return ""
	}
	return sig
}

func (p verifyRequest) metadata() *Metadata {
	var meta *Metadata
	if err := json.Unmarshal(p.Metadata, &meta); err != nil {
		return nil
	}
	return meta
}

// Quote prices a cart, reports bundle opportunities and returns a signed quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Signer == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload quoteRequest
	if !h.decode(w, r, &payload) {
		return
	}
	items, analysis, err := h.analyze(r.Context(), payload.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts := Options{}
	if payload.TTLSeconds != nil {
		opts.TTLSeconds = *payload.TTLSeconds
	}
	signed, err := h.Signer.Sign(items, analysis, opts)
	if err != nil {
		h.Logger.Error().Err(err).Msg("sign quote")
		h.writeError(w, err)
		return
	}

	quoteID := uuid.NewString()
	hash := cart.Hash(items)
	obs.Annotate(r.Context(), "quote_id", quoteID)
	obs.Annotate(r.Context(), "cart_hash", hash)
	if obs.QuoteIssuedTotal != nil {
		obs.QuoteIssuedTotal.WithLabelValues(discountLabel(analysis)).Inc()
		obs.QuoteDiscountCents.Observe(float64(analysis.TotalDiscountCents))
	}
	h.Logger.Info().
		Str("quote_id", quoteID).
		Str("cart_hash", hash).
		Int("lines", len(items)).
		Int64("grand_total_cents", analysis.Quote.GrandTotalCents).
		Int64("discount_cents", analysis.TotalDiscountCents).
		Int64("expires_at", signed.Metadata.ExpiresAt).
		Msg("quote_issued")

	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"quoteId":            quoteID,
			"status":             StatusIssued,
			"normalizedHash":     hash,
			"quote":              analysis.Quote,
			"opportunities":      analysis.Opportunities,
			"totalDiscountCents": analysis.TotalDiscountCents,
			"signedQuote":        signed,
		},
	})
}

// Verify re-prices the presented cart server-side and checks the quote signature
// and expiry. Verification failures are reported in the body, not as HTTP errors.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.Signer == nil || h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var payload verifyRequest
	if !h.decode(w, r, &payload) {
		return
	}
	items, analysis, err := h.analyze(r.Context(), payload.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	now := h.Signer.Now()
	meta := payload.metadata()
	status := h.Signer.Classify(items, analysis, payload.signature(), meta, now)
	if obs.QuoteVerificationsTotal != nil {
		obs.QuoteVerificationsTotal.WithLabelValues(string(status)).Inc()
	}
	hash := cart.Hash(items)
	obs.Annotate(r.Context(), "cart_hash", hash)
	obs.Annotate(r.Context(), "quote_status", string(status))
	evt := h.Logger.Info()
	if status != StatusValid {
		evt = h.Logger.Warn()
	}
	evt.Str("cart_hash", hash).Str("status", string(status)).Msg("quote_verified")

	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"valid":   status == StatusValid,
			"status":  status,
			"expired": IsExpired(meta, now),
			"quote":   analysis.Quote,
		},
	})
}

// CatalogDocument returns the catalog currently used for pricing.
func (h *Handler) CatalogDocument(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	c, err := h.Catalog.Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.WriteError(w, common.BadRequest("invalid payload", validationDetails(err)))
			return false
		}
	}
	return true
}

func (h *Handler) analyze(ctx context.Context, raw []json.RawMessage) ([]cart.LineItem, pricing.Analysis, error) {
	items, err := h.Normalizer.Normalize(raw)
	if err != nil {
		return nil, pricing.Analysis{}, err
	}
	c, err := h.Catalog.Get(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Msg("load catalog")
		return nil, pricing.Analysis{}, common.NewAppError("CATALOG_UNAVAILABLE", "catalog unavailable", http.StatusServiceUnavailable, err)
	}
	analysis, err := pricing.NewEngine(c).Analyze(items)
	if err != nil {
		return nil, pricing.Analysis{}, err
	}
	if obs.QuoteCartLines != nil {
		obs.QuoteCartLines.Observe(float64(len(items)))
	}
	return items, analysis, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrTooManyLines):
		common.JSONError(w, http.StatusBadRequest, "CART_TOO_LARGE", "cart has too many lines", nil)
	case errors.Is(err, catalog.ErrUnknownVariant):
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_VARIANT", err.Error(), nil)
	case errors.Is(err, ErrSecretNotConfigured):
		common.JSONError(w, http.StatusInternalServerError, "QUOTE_SIGNING_UNAVAILABLE", "quote signing is not configured", nil)
	default:
		common.WriteError(w, err)
	}
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return map[string]any{"fields": fields}
}

func discountLabel(a pricing.Analysis) string {
	if a.TotalDiscountCents > 0 {
		return "bundled"
	}
	return "regular"
}
