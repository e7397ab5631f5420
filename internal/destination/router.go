package destination

import (
	"fmt"
	"strings"

	"github.com/cardinal-rs/cardinal/internal/config"
)

// segmentKind distinguishes the three kinds of path template segment, in
// specificity order (literal is most specific, wildcard least).
type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind  segmentKind
	value string // literal text, or the param/wildcard name
}

// compiledRoute is a Route template compiled once at construction time.
type compiledRoute struct {
	method     string
	segments   []segment
	specificity [3]int // counts of literal, param, wildcard segments, most-specific-first
	order      int     // declaration order, for the first-declared tie-break
}

func compileRoute(method, pathTemplate string, order int) (*compiledRoute, error) {
	if !strings.HasPrefix(pathTemplate, "/") {
		return nil, fmt.Errorf("route path %q must start with /", pathTemplate)
	}
	parts := strings.Split(strings.TrimPrefix(pathTemplate, "/"), "/")
	segs := make([]segment, 0, len(parts))
	var literals, params, wildcards int
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, ":"):
			segs = append(segs, segment{kind: segParam, value: p[1:]})
			params++
		case strings.HasPrefix(p, "*"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("route path %q: wildcard must be the last segment", pathTemplate)
			}
			segs = append(segs, segment{kind: segWildcard, value: p[1:]})
			wildcards++
		default:
			segs = append(segs, segment{kind: segLiteral, value: p})
			literals++
		}
	}
	return &compiledRoute{
		method:      strings.ToUpper(method),
		segments:    segs,
		specificity: [3]int{literals, params, wildcards},
		order:       order,
	}, nil
}

// moreSpecific reports whether r is strictly more specific than other,
// per spec: literal segments > typed params > wildcards, then
// first-declared wins (handled by the caller via stable sort order).
func (r *compiledRoute) moreSpecific(other *compiledRoute) bool {
	if r.specificity[0] != other.specificity[0] {
		return r.specificity[0] > other.specificity[0]
	}
	if r.specificity[1] != other.specificity[1] {
		return r.specificity[1] > other.specificity[1]
	}
	return r.specificity[2] < other.specificity[2]
}

// match attempts to match path against this route's template, returning
// the extracted path parameters on success.
func (r *compiledRoute) match(method, path string) (map[string]string, bool) {
	if r.method != "" && r.method != strings.ToUpper(method) {
		return nil, false
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	params := make(map[string]string)
	for i, seg := range r.segments {
		switch seg.kind {
		case segWildcard:
			params[seg.value] = strings.Join(parts[i:], "/")
			return params, true
		case segParam:
			if i >= len(parts) {
				return nil, false
			}
			params[seg.value] = parts[i]
		default:
			if i >= len(parts) || parts[i] != seg.value {
				return nil, false
			}
		}
	}
	if len(parts) != len(r.segments) {
		return nil, false
	}
	return params, true
}

// router holds a destination's compiled route list, ordered
// most-specific-first (ties broken by declaration order).
type router struct {
	routes []*compiledRoute
}

func newRouter(routes []config.RouteConfig) (*router, error) {
	if len(routes) == 0 {
		return &router{}, nil
	}
	compiled := make([]*compiledRoute, 0, len(routes))
	for i, rc := range routes {
		cr, err := compileRoute(rc.Method, rc.PathTemplate, i)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cr)
	}
	// stable-sort most-specific-first; declaration order (already the
	// slice order) breaks ties because the sort is stable.
	for i := 1; i < len(compiled); i++ {
		for j := i; j > 0 && compiled[j].moreSpecific(compiled[j-1]); j-- {
			compiled[j], compiled[j-1] = compiled[j-1], compiled[j]
		}
	}
	return &router{routes: compiled}, nil
}

func (r *router) size() int { return len(r.routes) }

// match returns the path parameters of the first (most specific) matching
// route, or ok=false if none match.
func (r *router) match(method, path string) (map[string]string, bool) {
	for _, route := range r.routes {
		if params, ok := route.match(method, path); ok {
			return params, true
		}
	}
	return nil, false
}
