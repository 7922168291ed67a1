package did

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DocumentResolver resolves a DID to its current DID document.
//
// Implementations return ErrDeactivated for deactivated DIDs, ErrNotFound for
// unknown ones and ErrUnreachable (wrapped) when the service cannot answer.
type DocumentResolver interface {
	ResolveDocument(ctx context.Context, did string) (*Document, error)
}

// resolutionResult is the universal-resolver response envelope.
type resolutionResult struct {
	DIDDocument         *Document `json:"didDocument"`
	DIDDocumentMetadata struct {
		Deactivated bool `json:"deactivated"`
	} `json:"didDocumentMetadata"`
	DIDResolutionMetadata struct {
		Error string `json:"error"`
	} `json:"didResolutionMetadata"`
}

// HTTPResolverConfig configures an HTTPResolver.
type HTTPResolverConfig struct {
	// BaseURL of the resolution service, e.g. http://localhost:8080.
	BaseURL string
	// Path template; {did} is replaced by the escaped DID.
	// Defaults to /1.0/identifiers/{did}.
	Path    string
	Timeout time.Duration
}

// HTTPResolver resolves DIDs against a universal-resolver compatible service.
type HTTPResolver struct {
	client *resty.Client
	path   string
}

// NewHTTPResolver creates an HTTPResolver.
func NewHTTPResolver(cfg HTTPResolverConfig) *HTTPResolver {
	path := cfg.Path
	if path == "" {
		path = "/1.0/identifiers/{did}"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/did+ld+json, application/json")
	return &HTTPResolver{client: client, path: path}
}

func (r *HTTPResolver) ResolveDocument(ctx context.Context, did string) (*Document, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("did", did).
		Get(r.path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusGone:
		return nil, ErrDeactivated
	case code == http.StatusNotFound:
		return nil, ErrNotFound
	case code >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, code)
	case code != http.StatusOK:
		return nil, fmt.Errorf("resolve %s: unexpected status %d", did, code)
	}

	var res resolutionResult
	if err := json.Unmarshal(resp.Body(), &res); err != nil {
		return nil, fmt.Errorf("resolve %s: decode response: %w", did, err)
	}
	if res.DIDDocumentMetadata.Deactivated {
		return nil, ErrDeactivated
	}
	if res.DIDResolutionMetadata.Error == "notFound" {
		return nil, ErrNotFound
	}
	if res.DIDDocument == nil {
		return nil, fmt.Errorf("resolve %s: response has no didDocument", did)
	}
	return res.DIDDocument, nil
}

// DefaultCacheTTL applies when NewCachingResolver is given no TTL.
const DefaultCacheTTL = time.Minute

// CachingResolver memoizes successful resolutions for a bounded time.
// Failures, including deactivation, are never cached.
//
// A cached document keeps being served for up to the TTL after its DID is
// deactivated or its keys are rotated, so verification reports the
// deactivation only once the entry expires. Keep the TTL short where that
// window matters.
type CachingResolver struct {
	next  DocumentResolver
	cache *expirable.LRU[string, *Document]
	ttl   time.Duration
}

// NewCachingResolver wraps next with an LRU of the given size and TTL.
// Entries always expire; ttl <= 0 means DefaultCacheTTL.
func NewCachingResolver(next DocumentResolver, size int, ttl time.Duration) *CachingResolver {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachingResolver{
		next:  next,
		cache: expirable.NewLRU[string, *Document](size, nil, ttl),
		ttl:   ttl,
	}
}

func (c *CachingResolver) ResolveDocument(ctx context.Context, did string) (*Document, error) {
	if doc, ok := c.cache.Get(did); ok {
		return doc, nil
	}
	doc, err := c.next.ResolveDocument(ctx, did)
	if err != nil {
		return nil, err
	}
	c.cache.Add(did, doc)
	return doc, nil
}

// StaticResolver serves documents from a fixed map; DIDs listed in
// Deactivated resolve to ErrDeactivated. It backs tests and offline setups.
type StaticResolver struct {
	Documents   map[string]*Document
	Deactivated map[string]bool
}

func (s *StaticResolver) ResolveDocument(ctx context.Context, did string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Deactivated[did] {
		return nil, ErrDeactivated
	}
	if doc, ok := s.Documents[did]; ok {
		return doc, nil
	}
	return nil, ErrNotFound
}
