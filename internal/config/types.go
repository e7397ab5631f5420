// Package config holds Cardinal's configuration data model and the loader
// that builds it from TOML files, repeated --config merges, and
// CARDINAL__<SECTION>__<KEY> environment overrides.
package config

// Config is the immutable-after-load configuration root.
type Config struct {
	Server       ServerConfig                 `toml:"server"`
	Destinations map[string]DestinationConfig `toml:"destinations"`
	Plugins      []PluginConfig               `toml:"plugins"`
}

// ServerConfig holds the [server] section.
type ServerConfig struct {
	Address               string   `toml:"address"`
	ForcePathParameter    bool     `toml:"force_path_parameter"`
	LogUpstreamResponse   bool     `toml:"log_upstream_response"`
	GlobalRequestFilters  []string `toml:"global_request_middleware"`
	GlobalResponseFilters []string `toml:"global_response_middleware"`
}

// DestinationConfig holds one [destinations.<key>] section.
type DestinationConfig struct {
	Name    string        `toml:"name"`
	URL     string        `toml:"url"`
	Routes  []RouteConfig `toml:"routes"`
	Filters []string      `toml:"middleware"`
}

// RouteConfig is one entry of a destination's optional route list.
type RouteConfig struct {
	Method       string `toml:"method"`
	PathTemplate string `toml:"path"`
}

// PluginConfig is one [[plugins]] entry: exactly one of Builtin or Wasm is
// set, validated by Validate.
type PluginConfig struct {
	Builtin *BuiltinPluginConfig `toml:"builtin"`
	Wasm    *WasmPluginConfig    `toml:"wasm"`
}

// BuiltinPluginConfig names a natively registered filter.
type BuiltinPluginConfig struct {
	Name string `toml:"name"`
}

// WasmPluginConfig names a guest module and its filesystem path.
type WasmPluginConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Default returns the configuration's zero-value defaults, mirroring the
// optional fields' documented defaults in the config file format.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:               "",
			ForcePathParameter:    false,
			LogUpstreamResponse:   false,
			GlobalRequestFilters:  []string{},
			GlobalResponseFilters: []string{},
		},
		Destinations: map[string]DestinationConfig{},
		Plugins:      []PluginConfig{},
	}
}
