// Package provider defines the contract an upstream webhook provider
// implements and the registry the relay resolves providers from. Adding a
// provider means registering a new implementation; no caller switches on
// provider names.
package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/bizwatch/bizrelay/internal/models"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotMappable      = errors.New("event not mappable")
	ErrUpstreamFetch    = errors.New("upstream detail fetch failed")
)

// Normalized is the provider-independent view of one inbound event.
type Normalized struct {
	Category          models.Category
	SubjectRef        string
	ProviderEventType string
}

type Provider interface {
	Name() string

	// VerifySignature authenticates the raw, unparsed request body against
	// the provider's header scheme. It must never operate on re-serialized
	// JSON; any whitespace or key-order difference breaks the MAC.
	VerifySignature(headers http.Header, rawBody []byte, secret string) error

	// SignatureValue extracts the raw signature header value for audit
	// storage, whether or not verification ran.
	SignatureValue(headers http.Header) string

	// Normalize classifies the payload and extracts the subject reference.
	// It may call back into the provider's API for detail lookups and
	// returns ErrNotMappable or ErrUpstreamFetch (wrapped) for payloads
	// that are stored but not actionable.
	Normalize(ctx context.Context, rawBody []byte) (Normalized, error)

	// MapCategory maps a provider-native category string to a relay
	// category. Pure function; false means unrecognized.
	MapCategory(raw string) (models.Category, bool)
}

// Registry is an explicitly constructed provider lookup, injected at startup.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
