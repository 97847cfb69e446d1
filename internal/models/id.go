package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, lexically sortable identifier, e.g. "evt_01H...".
// Prefixes in use: tn_ (tenant), rec_ (record), ep_ (endpoint), evt_ (inbound
// event), att_ (delivery attempt).
func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

func NewAPIKey() string {
	return "bk_" + randomString(32)
}

// NewSecret returns a fresh per-endpoint signing secret.
func NewSecret() string {
	return "whsec_" + randomString(40)
}

func randomString(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
