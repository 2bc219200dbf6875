package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed data/catalog.json
var embeddedCatalog []byte

// maxDocumentBytes bounds remote catalog downloads.
const maxDocumentBytes = 4 << 20

// Source yields a raw catalog document.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) ([]byte, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("catalog: source not configured")
	}
	return f(ctx)
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

// Load implements Source.
func (EmbeddedSource) Load(context.Context) ([]byte, error) {
	return embeddedCatalog, nil
}

// FileSource reads the catalog from a path on disk.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(context.Context) ([]byte, error) {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil, errors.New("catalog: file path not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return data, nil
}

// HTTPSource fetches a versioned catalog artifact over HTTP.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPClient returns a client instrumented for tracing.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Load implements Source.
func (s HTTPSource) Load(ctx context.Context) ([]byte, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("catalog: url not configured")
	}
	client := s.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: fetch: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("catalog: read body: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, errors.New("catalog: document too large")
	}
	return data, nil
}
