package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteIssuedTotal counts signed quotes by whether any bundle discount applied.
	QuoteIssuedTotal *prometheus.CounterVec
	// QuoteVerificationsTotal counts verification outcomes by status.
	QuoteVerificationsTotal *prometheus.CounterVec
	// QuoteDiscountCents records the total discount granted per issued quote.
	QuoteDiscountCents prometheus.Histogram
	// QuoteCartLines records normalized cart sizes.
	QuoteCartLines prometheus.Histogram
	// CatalogLoadsTotal counts catalog document loads by source and result.
	CatalogLoadsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers quote-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteIssuedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_issued_total",
			Help:      "Count of signed quotes issued.",
		}, []string{"pricing"}))
		QuoteVerificationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_verifications_total",
			Help:      "Count of quote verifications by resulting status.",
		}, []string{"status"}))
		QuoteDiscountCents = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_discount_cents",
			Help:      "Total bundle discount per issued quote in minor units.",
			Buckets:   []float64{0, 100, 500, 1000, 2500, 5000, 10000, 50000},
		}))
		QuoteCartLines = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_cart_lines",
			Help:      "Normalized line count per priced cart.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}))
		CatalogLoadsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_loads_total",
			Help:      "Count of catalog document loads by source and result.",
		}, []string{"source", "result"}))
	})
}

// ObserveCatalogLoad records a catalog load attempt when domain metrics are registered.
func ObserveCatalogLoad(source string, err error) {
	if CatalogLoadsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogLoadsTotal.WithLabelValues(source, result).Inc()
}
