package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
)

// Load builds a Config by merging each TOML file in order onto the
// defaults, then applying CARDINAL__<SECTION>__<KEY> environment
// overrides, then validating the result. Later files in paths override
// fields set by earlier ones.
func Load(paths []string) (*Config, error) {
	cfg := Default()

	for _, p := range paths {
		if err := loadFromFile(cfg, p); err != nil {
			return nil, err
		}
	}

	if err := loadFromEnv(cfg, os.Environ()); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &cardinalerr.ConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return &cardinalerr.ConfigError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return nil
}

// loadFromEnv walks the Config struct by its `toml` tags and applies any
// CARDINAL__<SECTION>__<KEY> environment variable whose path matches a
// struct field, so the override pattern is generic over every struct-typed
// section rather than one hand-written check per field. Paths that descend
// into the destinations map or the plugins list are not supported and are
// reported as a ConfigError.
func loadFromEnv(cfg *Config, environ []string) error {
	const prefix = "CARDINAL__"
	for _, kv := range environ {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		key, val := kv[:eq], kv[eq+1:]
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "__")
		if err := setByTOMLPath(reflect.ValueOf(cfg).Elem(), path, val); err != nil {
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("env override %s: %v", key, err)}
		}
	}
	return nil
}

func setByTOMLPath(v reflect.Value, path []string, val string) error {
	if len(path) == 0 {
		return setScalar(v, val)
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("cannot descend into non-struct for %q", path[0])
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("toml")
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		if strings.EqualFold(name, path[0]) {
			return setByTOMLPath(v.Field(i), path[1:], val)
		}
	}
	return fmt.Errorf("unknown config key %q", path[0])
}

func setScalar(v reflect.Value, val string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(val)
	case reflect.Bool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", v.Type().Elem())
		}
		parts := strings.Split(val, ",")
		out := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported config field kind %s", v.Kind())
	}
	return nil
}

// Validate checks the parts of the config that must hold before a Plugin
// Registry or Destination Resolver can be built from it: addresses are
// non-empty, every destination's name matches its map key, and plugin
// entries name exactly one of builtin or wasm.
func Validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return &cardinalerr.ConfigError{Reason: "server.address is required"}
	}
	for key, dest := range cfg.Destinations {
		if dest.Name == "" {
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("destinations.%s: name is required", key)}
		}
		if dest.Name != key {
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("destinations.%s: name %q does not match its key", key, dest.Name)}
		}
		if dest.URL == "" {
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("destinations.%s: url is required", key)}
		}
		for _, r := range dest.Routes {
			if r.Method == "" || r.PathTemplate == "" {
				return &cardinalerr.ConfigError{Reason: fmt.Sprintf("destinations.%s: route missing method or path", key)}
			}
		}
	}
	names := make(map[string]struct{})
	for i, p := range cfg.Plugins {
		switch {
		case p.Builtin != nil && p.Wasm != nil:
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: exactly one of builtin or wasm must be set", i)}
		case p.Builtin != nil:
			if p.Builtin.Name == "" {
				return &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: builtin.name is required", i)}
			}
			names[p.Builtin.Name] = struct{}{}
		case p.Wasm != nil:
			if p.Wasm.Name == "" || p.Wasm.Path == "" {
				return &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: wasm.name and wasm.path are required", i)}
			}
			names[p.Wasm.Name] = struct{}{}
		default:
			return &cardinalerr.ConfigError{Reason: fmt.Sprintf("plugins[%d]: one of builtin or wasm must be set", i)}
		}
	}

	checkNames := func(section string, list []string) error {
		for _, n := range list {
			if _, ok := names[n]; !ok {
				return &cardinalerr.ConfigError{Reason: fmt.Sprintf("%s references unknown plugin %q", section, n)}
			}
		}
		return nil
	}
	if err := checkNames("server.global_request_middleware", cfg.Server.GlobalRequestFilters); err != nil {
		return err
	}
	if err := checkNames("server.global_response_middleware", cfg.Server.GlobalResponseFilters); err != nil {
		return err
	}
	for key, dest := range cfg.Destinations {
		if err := checkNames(fmt.Sprintf("destinations.%s.middleware", key), dest.Filters); err != nil {
			return err
		}
	}
	return nil
}
