package govfetch

import (
	"errors"
	"sort"
	"sync"
)

// Registry holds one Client per downstream service, so callers address
// integrations by name instead of threading client handles around.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	defaults []Option
}

// NewRegistry creates a registry. The given options are applied to every
// registered client before its own, so shared wiring (logger, metrics,
// transport) lives in one place.
func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		clients:  make(map[string]*Client),
		defaults: defaults,
	}
}

// Register builds a client for the named service and stores it, replacing
// any previous registration under that name. The service name option is
// applied last so it always sticks.
func (r *Registry) Register(name string, options ...Option) *Client {
	opts := make([]Option, 0, len(r.defaults)+len(options)+1)
	opts = append(opts, r.defaults...)
	opts = append(opts, options...)
	opts = append(opts, WithServiceName(name))
	client := New(opts...)

	r.mu.Lock()
	r.clients[name] = client
	r.mu.Unlock()
	return client
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// Names lists the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered client and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, client := range r.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.clients, name)
	}
	return errors.Join(errs...)
}
