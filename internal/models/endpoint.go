package models

import "time"

// Endpoint is a tenant-configured HTTP destination for outbound event
// delivery. Counters are only ever touched through atomic storage updates;
// reaching DisableThreshold consecutive failures forces Enabled off.
type Endpoint struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	URL                 string     `json:"url"`
	Description         string     `json:"description"`
	Secret              string     `json:"secret,omitempty"`
	Categories          []string   `json:"categories"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	TotalAttempts       int64      `json:"total_attempts"`
	TotalSuccesses      int64      `json:"total_successes"`
	LastDeliveryAt      *time.Time `json:"last_delivery_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DisableThreshold is the consecutive-failure count at which an endpoint is
// automatically disabled. Re-enabling is a manual management action.
const DisableThreshold = 10

// SubscribesTo reports whether the endpoint's category filter includes c.
// An empty filter and the literal "all" both match every category.
func (e *Endpoint) SubscribesTo(c Category) bool {
	if len(e.Categories) == 0 {
		return true
	}
	for _, sub := range e.Categories {
		if sub == CategoryAll || sub == string(c) {
			return true
		}
	}
	return false
}
