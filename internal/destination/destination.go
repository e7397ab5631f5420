// Package destination implements the destination resolver: mapping an
// incoming request to a backend and its filter chain, via a path segment
// (force_path_parameter) or the leftmost subdomain of the Host header, and
// then, optionally, a typed route template.
package destination

import "github.com/cardinal-rs/cardinal/internal/config"

// Destination is a resolved backend plus its configured filter chain.
type Destination struct {
	Name        string
	UpstreamAddr string
	Filters     []string
	router      *router
}

func newDestination(name string, cfg config.DestinationConfig) (*Destination, error) {
	r, err := newRouter(cfg.Routes)
	if err != nil {
		return nil, err
	}
	return &Destination{
		Name:         name,
		UpstreamAddr: cfg.URL,
		Filters:      cfg.Filters,
		router:       r,
	}, nil
}

// HasRoutes reports whether this destination declares an explicit route
// list (step 3 of the selection algorithm only applies when it does).
func (d *Destination) HasRoutes() bool {
	return d.router != nil && d.router.size() > 0
}
