package mailbus

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coregx/mailbus/model"
)

// DefaultDedicatedDomains are the domains with their own bucket and consumer.
var DefaultDedicatedDomains = []string{"gmail.com", "wp.com"}

// Bucket is a named persistence target plus the state every writer to it shares.
//
// Buckets are created by a Resolver and never removed. The ready flag records
// that the bucket's container (file, table, key) is known to exist; initMu
// guarantees at most one initialization runs at a time; writeMu serializes
// writes for drivers that read-modify-write the whole collection.
type Bucket struct {
	name    string
	ready   atomic.Bool
	initMu  sync.Mutex
	writeMu sync.Mutex
}

func newBucket(name string) *Bucket {
	return &Bucket{name: name}
}

// Name returns the bucket identity (file stem, database name, key suffix).
func (b *Bucket) Name() string {
	return b.name
}

// Ready reports whether initialization has completed successfully.
func (b *Bucket) Ready() bool {
	return b.ready.Load()
}

// String implements fmt.Stringer.
func (b *Bucket) String() string {
	return b.name
}

// Resolver maps domain labels to buckets.
//
// Each dedicated domain gets a bucket named after itself; every other label,
// including model.UnknownDomain, resolves to the shared model.BucketOther.
// The mapping is fixed at construction, so the write path and every listing
// path agree on it.
type Resolver struct {
	dedicated map[string]*Bucket
	other     *Bucket
	order     []string
}

// NewResolver creates a resolver for the given dedicated domains.
// Domains are lower-cased; duplicates and empty labels are rejected, as is
// a dedicated domain that collides with the shared bucket name.
func NewResolver(dedicatedDomains ...string) (*Resolver, error) {
	r := &Resolver{
		dedicated: make(map[string]*Bucket, len(dedicatedDomains)),
		other:     newBucket(model.BucketOther),
	}

	for _, d := range dedicatedDomains {
		domain := strings.ToLower(strings.TrimSpace(d))
		if domain == "" {
			return nil, NewError(ErrCodeConfiguration, "dedicated domain cannot be empty")
		}
		if domain == model.BucketOther {
			return nil, NewError(ErrCodeConfiguration,
				fmt.Sprintf("dedicated domain %q collides with the shared bucket", domain))
		}
		if _, dup := r.dedicated[domain]; dup {
			return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("duplicate dedicated domain %q", domain))
		}
		r.dedicated[domain] = newBucket(domain)
		r.order = append(r.order, domain)
	}

	return r, nil
}

// MustResolver is NewResolver that panics on error. Intended for tests and
// package-level defaults.
func MustResolver(dedicatedDomains ...string) *Resolver {
	r, err := NewResolver(dedicatedDomains...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the bucket for a domain label.
func (r *Resolver) Resolve(domain string) *Bucket {
	if b, ok := r.dedicated[domain]; ok {
		return b
	}
	return r.other
}

// Lookup returns the bucket with the given name.
func (r *Resolver) Lookup(name string) (*Bucket, bool) {
	if name == model.BucketOther {
		return r.other, true
	}
	b, ok := r.dedicated[name]
	return b, ok
}

// IsDedicated reports whether domain has its own bucket.
func (r *Resolver) IsDedicated(domain string) bool {
	_, ok := r.dedicated[domain]
	return ok
}

// Dedicated returns the dedicated domains in configuration order.
func (r *Resolver) Dedicated() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Buckets returns every bucket: dedicated ones sorted by name, then "other".
func (r *Resolver) Buckets() []*Bucket {
	names := r.Dedicated()
	sort.Strings(names)

	out := make([]*Bucket, 0, len(names)+1)
	for _, n := range names {
		out = append(out, r.dedicated[n])
	}
	return append(out, r.other)
}
