// Package toggles tracks which outbound mail services accept new messages.
//
// Services are fixed: gmail, wp and other. Each is ACTIVE or DISABLED. State
// can be changed through the API or seeded from a TOML file that is watched
// for changes.
package toggles

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/coregx/mailbus"
)

// Status of a service.
type Status string

const (
	Active   Status = "ACTIVE"
	Disabled Status = "DISABLED"
)

// Service names.
const (
	Gmail = "gmail"
	WP    = "wp"
	Other = "other"
)

var (
	// ErrUnknownService is returned for names outside the registry.
	ErrUnknownService = errors.New("service not found")

	// ErrNoTransition is returned when a service already has the requested status.
	ErrNoTransition = errors.New("service already has the requested status")
)

// Registry holds the status of every service. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	statuses map[string]Status
	logger   mailbus.Logger
}

// NewRegistry returns a registry with all services active.
func NewRegistry(logger mailbus.Logger) *Registry {
	if logger == nil {
		logger = &mailbus.NoopLogger{}
	}
	return &Registry{
		statuses: map[string]Status{
			Gmail: Active,
			WP:    Active,
			Other: Active,
		},
		logger: logger,
	}
}

// ServiceFor maps an address to the service that delivers it.
func ServiceFor(address string) string {
	at := strings.Index(address, "@")
	if at < 0 {
		return Other
	}
	domain := strings.ToLower(address[at+1:])
	switch {
	case strings.Contains(domain, Gmail):
		return Gmail
	case strings.Contains(domain, WP):
		return WP
	default:
		return Other
	}
}

// Enabled reports whether the named service is active. Unknown names are not.
func (r *Registry) Enabled(name string) bool {
	status, err := r.Status(name)
	return err == nil && status == Active
}

// Status returns the status of the named service.
func (r *Registry) Status(name string) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[strings.ToLower(name)]
	if !ok {
		return Disabled, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return status, nil
}

// All returns a snapshot of every service status.
func (r *Registry) All() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Status, len(r.statuses))
	for name, status := range r.statuses {
		out[name] = status
	}
	return out
}

// Names returns the service names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.statuses))
	for name := range r.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Activate moves a disabled service to ACTIVE.
func (r *Registry) Activate(name string) error {
	return r.transition(name, Active)
}

// Disable moves an active service to DISABLED.
func (r *Registry) Disable(name string) error {
	return r.transition(name, Disabled)
}

func (r *Registry) transition(name string, to Status) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.statuses[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	if current == to {
		return fmt.Errorf("%w: %s is %s", ErrNoTransition, key, current)
	}
	r.statuses[key] = to
	r.logger.Infof("Service %s is now %s", key, to)
	return nil
}

// stateFile is the TOML layout of a toggle state file:
//
//	[services]
//	gmail = "ACTIVE"
//	wp = "DISABLED"
type stateFile struct {
	Services map[string]string `toml:"services"`
}

// LoadFile applies the statuses in a TOML state file. Services not named in
// the file keep their current status. Unknown services or statuses fail the
// whole load and leave the registry untouched.
func (r *Registry) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sf stateFile
	if err := toml.Unmarshal(b, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	updates := make(map[string]Status, len(sf.Services))
	for name, raw := range sf.Services {
		status := Status(strings.ToUpper(strings.TrimSpace(raw)))
		if status != Active && status != Disabled {
			return fmt.Errorf("service %s: invalid status %q", name, raw)
		}
		updates[strings.ToLower(name)] = status
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range updates {
		if _, ok := r.statuses[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownService, name)
		}
	}
	for name, status := range updates {
		if r.statuses[name] != status {
			r.logger.Infof("Service %s is now %s (from %s)", name, status, path)
		}
		r.statuses[name] = status
	}
	return nil
}
