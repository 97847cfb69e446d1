// Package bizradar implements the reference business-intelligence provider.
//
// Bizradar sends two distinct wire shapes with no shared discriminant field:
// match requests carry a top-level subject URN, monitoring alerts carry only
// a link to fetch alert details. The two-shape probe below is a closed,
// provider-specific quirk; do not generalize it into an envelope.
package bizradar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bizwatch/bizrelay/internal/models"
	"github.com/bizwatch/bizrelay/internal/provider"
	"github.com/bizwatch/bizrelay/internal/signing"
)

const ProviderName = "bizradar"

const (
	HeaderDelivery  = "X-Bizradar-Delivery"
	HeaderTimestamp = "X-Bizradar-Timestamp"
	HeaderSignature = "X-Bizradar-Signature"
)

var urnPattern = regexp.MustCompile(`^urn:bizradar:(.+)$`)

// categoryPrefixes maps provider category strings to relay categories by
// prefix: "business-closed-site-content" -> business-closed, and so on.
var categoryPrefixes = []struct {
	prefix   string
	category models.Category
}{
	{"business-closed", models.CategoryBusinessClosed},
	{"business-profile", models.CategoryBusinessProfile},
	{"sentiment", models.CategorySentiment},
	{"website", models.CategoryWebsite},
}

type Provider struct {
	client *Client
	log    zerolog.Logger
}

// New returns the bizradar provider. client may be nil when no API
// credentials are configured; monitoring alerts then normalize as
// unactionable because their details cannot be fetched.
func New(client *Client, log zerolog.Logger) *Provider {
	return &Provider{client: client, log: log}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SignatureValue(headers http.Header) string {
	return headers.Get(HeaderSignature)
}

// VerifySignature checks the three-header scheme: a delivery id, a unix
// timestamp, and "sha256=<hex>" over "<timestamp>.<raw body>".
func (p *Provider) VerifySignature(headers http.Header, rawBody []byte, secret string) error {
	if headers.Get(HeaderDelivery) == "" {
		return fmt.Errorf("%w: missing %s header", provider.ErrInvalidSignature, HeaderDelivery)
	}
	sig := headers.Get(HeaderSignature)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", provider.ErrInvalidSignature, HeaderSignature)
	}
	tsRaw := headers.Get(HeaderTimestamp)
	if tsRaw == "" {
		return fmt.Errorf("%w: missing %s header", provider.ErrInvalidSignature, HeaderTimestamp)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp %q", provider.ErrInvalidSignature, tsRaw)
	}
	if !signing.VerifyTimestamped(secret, ts, rawBody, sig) {
		return fmt.Errorf("%w: signature mismatch", provider.ErrInvalidSignature)
	}
	return nil
}

// matchRequestShape and monitoringAlertShape cover the two bizradar payloads.
type matchRequestShape struct {
	EventType  string `json:"event_type"`
	SubjectURN string `json:"subject_urn"`
}

type monitoringAlertShape struct {
	Alert *struct {
		ID    string `json:"id"`
		Links struct {
			Detail string `json:"detail"`
		} `json:"links"`
	} `json:"alert"`
}

func (p *Provider) Normalize(ctx context.Context, rawBody []byte) (provider.Normalized, error) {
	var match matchRequestShape
	if err := json.Unmarshal(rawBody, &match); err == nil && match.SubjectURN != "" {
		return p.normalizeMatchRequest(match)
	}

	var alert monitoringAlertShape
	if err := json.Unmarshal(rawBody, &alert); err == nil && alert.Alert != nil && alert.Alert.Links.Detail != "" {
		return p.normalizeAlert(ctx, alert)
	}

	return provider.Normalized{}, fmt.Errorf("%w: unrecognized bizradar payload shape", provider.ErrNotMappable)
}

func (p *Provider) normalizeMatchRequest(match matchRequestShape) (provider.Normalized, error) {
	m := urnPattern.FindStringSubmatch(match.SubjectURN)
	if m == nil {
		return provider.Normalized{}, fmt.Errorf("%w: malformed subject urn %q", provider.ErrNotMappable, match.SubjectURN)
	}
	eventType := match.EventType
	if eventType == "" {
		eventType = "match-request"
	}
	// Match requests are profile match outcomes for an already-known subject.
	return provider.Normalized{
		Category:          models.CategoryBusinessProfile,
		SubjectRef:        m[1],
		ProviderEventType: eventType,
	}, nil
}

func (p *Provider) normalizeAlert(ctx context.Context, alert monitoringAlertShape) (provider.Normalized, error) {
	if p.client == nil {
		return provider.Normalized{}, fmt.Errorf("%w: no bizradar API client configured", provider.ErrUpstreamFetch)
	}

	detail, err := p.client.FetchAlert(ctx, alert.Alert.Links.Detail)
	if err != nil {
		// Detail may not be available yet; the inbound call still has to be
		// acknowledged, so this degrades to stored-but-unactionable.
		p.log.Warn().Err(err).Str("alert_id", alert.Alert.ID).Msg("bizradar alert detail fetch failed")
		return provider.Normalized{}, fmt.Errorf("%w: %v", provider.ErrUpstreamFetch, err)
	}

	if len(detail.FlaggedCategories) == 0 {
		return provider.Normalized{}, fmt.Errorf("%w: alert %s has no flagged categories", provider.ErrNotMappable, alert.Alert.ID)
	}
	raw := detail.FlaggedCategories[0]
	category, ok := p.MapCategory(raw)
	if !ok {
		return provider.Normalized{}, fmt.Errorf("%w: unknown category %q", provider.ErrNotMappable, raw)
	}

	subjectRef := detail.SubjectURN
	if m := urnPattern.FindStringSubmatch(subjectRef); m != nil {
		subjectRef = m[1]
	}
	if subjectRef == "" {
		return provider.Normalized{}, fmt.Errorf("%w: alert %s carries no subject", provider.ErrNotMappable, alert.Alert.ID)
	}

	return provider.Normalized{
		Category:          category,
		SubjectRef:        subjectRef,
		ProviderEventType: raw,
	}, nil
}

func (p *Provider) MapCategory(raw string) (models.Category, bool) {
	for _, entry := range categoryPrefixes {
		if strings.HasPrefix(raw, entry.prefix) {
			return entry.category, true
		}
	}
	return "", false
}
