package identity

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
)

// DefaultSource is the placeholder identity the single-user deployment hashes.
// Every session built from it aliases the same remote memory owner.
const DefaultSource = "user@example.com"

// Provider derives a pseudonymous user identifier once and caches it for the
// lifetime of the owning session.
type Provider struct {
	source string
	once   sync.Once
	userID string
}

// NewProvider returns a Provider hashing source. An empty source falls back to
// DefaultSource.
func NewProvider(source string) *Provider {
	if source == "" {
		source = DefaultSource
	}
	return &Provider{source: source}
}

// UserID returns the memoized identifier, computing it on first use.
func (p *Provider) UserID() string {
	p.once.Do(func() {
		p.userID = Derive(p.source)
	})
	return p.userID
}

// Derive hashes source into a stable hex identifier. md5 keeps identifiers
// compatible with memories written by earlier deployments; this is not a
// security boundary.
func Derive(source string) string {
	sum := md5.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}
