package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsmc-io/gsmc/internal/registry"
)

const jsonCatalog = `{
  "vhserver": {
    "display_name": "Valheim",
    "server_code": "vhserver",
    "ports": [{"port": 2456, "protocol": "udp"}],
    "default_lgsm_config": {"serverpassword": ""},
    "default_instance_type": "t3.medium",
    "min_ram_gb": 4,
    "rcon_port": null,
    "disk_gb": 20,
    "required_config": []
  }
}`

const yamlCatalog = `
vhserver:
  display_name: Valheim
  server_code: vhserver
  ports:
    - port: 2456
      protocol: udp
  default_lgsm_config:
    serverpassword: ""
  default_instance_type: t3.medium
  min_ram_gb: 4
  disk_gb: 20
  required_config: []
`

func TestLoadCatalogFileJSON(t *testing.T) {
	path := writeFile(t, "catalog.json", jsonCatalog)
	games, err := registry.LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Valheim", games[0].DisplayName)
	assert.Equal(t, "vhserver", games[0].CatalogCode)
	assert.Contains(t, games[0].RequiredConfig, "serverpassword")
}

func TestLoadCatalogFileYAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", yamlCatalog)
	games, err := registry.LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Valheim", games[0].DisplayName)
	assert.Equal(t, 20, games[0].DiskGB)
}

func TestLoadCatalogFileJSONAndYAMLAgree(t *testing.T) {
	jsonGames, err := registry.LoadCatalogFile(writeFile(t, "a.json", jsonCatalog))
	require.NoError(t, err)
	yamlGames, err := registry.LoadCatalogFile(writeFile(t, "b.yaml", yamlCatalog))
	require.NoError(t, err)
	assert.Equal(t, jsonGames[0].Ports, yamlGames[0].Ports)
	assert.Equal(t, jsonGames[0].RequiredConfig, yamlGames[0].RequiredConfig)
}

func TestRegisterCatalogAddsToRegistry(t *testing.T) {
	r := registry.New()
	registry.RegisterNative(r)
	path := writeFile(t, "catalog.json", jsonCatalog)
	require.NoError(t, registry.RegisterCatalog(r, path))

	_, ok := r.Get("factorio")
	assert.True(t, ok, "native descriptors must survive a catalog load")
	g, ok := r.Get("vhserver")
	require.True(t, ok)
	assert.Equal(t, "Valheim", g.DisplayName)
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}
