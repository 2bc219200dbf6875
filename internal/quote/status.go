package quote

import (
	"time"

	"github.com/noah-isme/bundle-quote/internal/cart"
	"github.com/noah-isme/bundle-quote/internal/pricing"
)

// Status is the lifecycle state of a presented quote.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusValid    Status = "valid"
	StatusExpired  Status = "expired"
	StatusTampered Status = "tampered"
)

// Classify evaluates a presented quote. A signature mismatch is reported as
// tampered regardless of expiry.
func (s *Signer) Classify(items []cart.LineItem, analysis pricing.Analysis, signature string, meta *Metadata, now time.Time) Status {
	if !s.Verify(items, analysis, signature, meta) {
		return StatusTampered
	}
	if IsExpired(meta, now) {
		return StatusExpired
	}
	return StatusValid
}
