package destination

import (
	"net/http"
	"strings"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/config"
)

// Selection is the result of a successful Select call: the resolved
// backend, the forwarded path (after force_path_parameter stripping), and
// any path parameters extracted by the route matcher.
type Selection struct {
	Backend      *Destination
	ForwardPath  string
	PathParams   map[string]string
}

// Resolver implements spec.md §4.2: select(request) -> (backend, filters)
// | NoBackend.
type Resolver struct {
	forcePathParameter bool
	destinations       map[string]*Destination
}

// New builds a Resolver from the destination section of a loaded config.
// Route templates are compiled once here; Select never allocates a
// matcher at request time.
func New(cfg *config.Config) (*Resolver, error) {
	dests := make(map[string]*Destination, len(cfg.Destinations))
	for key, dc := range cfg.Destinations {
		d, err := newDestination(key, dc)
		if err != nil {
			return nil, err
		}
		dests[d.Name] = d
	}
	return &Resolver{
		forcePathParameter: cfg.Server.ForcePathParameter,
		destinations:       dests,
	}, nil
}

// Select resolves req to a Destination per the algorithm in spec.md §4.2.
func (r *Resolver) Select(req *http.Request) (*Selection, error) {
	var name, forwardPath string

	if r.forcePathParameter {
		name, forwardPath = splitFirstSegment(req.URL.Path)
	} else {
		name = leftmostSubdomain(req.Host)
		forwardPath = req.URL.Path
	}

	dest, ok := r.destinations[name]
	if !ok {
		return nil, &cardinalerr.NoBackend{Reason: cardinalerr.UnknownDestination, StatusHint: 404}
	}

	params := map[string]string{}
	if dest.HasRoutes() {
		matched, ok := dest.router.match(req.Method, forwardPath)
		if !ok {
			return nil, &cardinalerr.NoBackend{Reason: cardinalerr.RouteMismatch, StatusHint: 404}
		}
		for k, v := range matched {
			params["path."+k] = v
		}
	}

	return &Selection{
		Backend:     dest,
		ForwardPath: forwardPath,
		PathParams:  params,
	}, nil
}

// splitFirstSegment strips the first path segment, returning it as the
// destination name and the remainder (always slash-prefixed) as the
// forwarded path. "/posts/123" -> ("posts", "/123").
func splitFirstSegment(path string) (name, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, "/"
	}
	return trimmed[:idx], trimmed[idx:]
}

// leftmostSubdomain returns the first label of the Host header, stripped
// of any port.
func leftmostSubdomain(host string) string {
	if colon := strings.IndexByte(host, ':'); colon >= 0 {
		host = host[:colon]
	}
	if dot := strings.IndexByte(host, '.'); dot >= 0 {
		return host[:dot]
	}
	return host
}
