package destination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
	"github.com/cardinal-rs/cardinal/internal/config"
)

func TestSelect_ForcePathParameter(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{ForcePathParameter: true},
		Destinations: map[string]config.DestinationConfig{
			"posts": {Name: "posts", URL: "127.0.0.1:9001"},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://example.com/posts/42", nil)
	sel, err := r.Select(req)
	require.NoError(t, err)
	require.Equal(t, "posts", sel.Backend.Name)
	require.Equal(t, "/42", sel.ForwardPath)
}

func TestSelect_HostBased(t *testing.T) {
	cfg := &config.Config{
		Destinations: map[string]config.DestinationConfig{
			"posts": {Name: "posts", URL: "127.0.0.1:9001"},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://posts.example.com/42", nil)
	req.Host = "posts.example.com"
	sel, err := r.Select(req)
	require.NoError(t, err)
	require.Equal(t, "posts", sel.Backend.Name)
	require.Equal(t, "/42", sel.ForwardPath)
}

func TestSelect_UnknownDestination(t *testing.T) {
	cfg := &config.Config{Destinations: map[string]config.DestinationConfig{}}
	r, err := New(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://unknown.example.com/", nil)
	req.Host = "unknown.example.com"
	_, err = r.Select(req)
	require.Error(t, err)
	var nb *cardinalerr.NoBackend
	require.ErrorAs(t, err, &nb)
	require.Equal(t, cardinalerr.UnknownDestination, nb.Reason)
}

func TestSelect_RouteMatchingAndSpecificity(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{ForcePathParameter: true},
		Destinations: map[string]config.DestinationConfig{
			"posts": {
				Name: "posts",
				URL:  "127.0.0.1:9001",
				Routes: []config.RouteConfig{
					{Method: "GET", PathTemplate: "/:id"},
					{Method: "GET", PathTemplate: "/latest"},
				},
			},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://example.com/posts/latest", nil)
	sel, err := r.Select(req)
	require.NoError(t, err)
	require.Empty(t, sel.PathParams)

	req2 := httptest.NewRequest("GET", "http://example.com/posts/42", nil)
	sel2, err := r.Select(req2)
	require.NoError(t, err)
	require.Equal(t, "42", sel2.PathParams["path.id"])
}

func TestSelect_RouteMismatch(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{ForcePathParameter: true},
		Destinations: map[string]config.DestinationConfig{
			"posts": {
				Name:   "posts",
				URL:    "127.0.0.1:9001",
				Routes: []config.RouteConfig{{Method: "POST", PathTemplate: "/:id"}},
			},
		},
	}
	r, err := New(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "http://example.com/posts/42", nil)
	_, err = r.Select(req)
	require.Error(t, err)
	var nb *cardinalerr.NoBackend
	require.ErrorAs(t, err, &nb)
	require.Equal(t, cardinalerr.RouteMismatch, nb.Reason)
}
