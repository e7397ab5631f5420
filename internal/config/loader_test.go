package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir() + "/cardinal.toml"
	require.NoError(t, os.WriteFile(tmp, []byte(contents), 0o644))
	return tmp
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, `
[server]
address = "127.0.0.1:9000"
`)
	cfg, err := Load([]string{path})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	require.False(t, cfg.Server.ForcePathParameter)
}

func TestLoad_MultiFileMerge(t *testing.T) {
	base := writeTemp(t, `
[server]
address = "127.0.0.1:9000"
force_path_parameter = false
`)
	override := writeTemp(t, `
[server]
force_path_parameter = true
`)
	cfg, err := Load([]string{base, override})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	require.True(t, cfg.Server.ForcePathParameter)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeTemp(t, `
[server]
address = "127.0.0.1:9000"
`)
	t.Setenv("CARDINAL__SERVER__ADDRESS", "0.0.0.0:8081")
	cfg, err := Load([]string{path})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8081", cfg.Server.Address)
}

func TestValidate_UnknownPluginReference(t *testing.T) {
	path := writeTemp(t, `
[server]
address = "127.0.0.1:9000"
global_request_middleware = ["missing"]
`)
	_, err := Load([]string{path})
	require.Error(t, err)
}

func TestValidate_DestinationRequiresURL(t *testing.T) {
	path := writeTemp(t, `
[server]
address = "127.0.0.1:9000"

[destinations.posts]
name = "posts"
`)
	_, err := Load([]string{path})
	require.Error(t, err)
}
