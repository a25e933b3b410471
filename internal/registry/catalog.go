package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/pkg/portspec"
)

// lgsmImage and lgsmVolumes/lgsmDataPaths are the constants every
// catalog-family descriptor shares, carried over from
// original_source/src/gsm/games/lgsm_catalog.py.
const lgsmImage = "gameservermanagers/gameserver"

// lgsmRestartPolicy is appended to every catalog-family game's extra
// docker run/create args: the original unconditionally restarts any
// LinuxGSM-backed container (provisioner.py's "if game.lgsm_server_code:
// extra_args.append(...)"), since these servers have no orchestration
// layer of their own to recover from a host reboot.
const lgsmRestartPolicy = "--restart unless-stopped"

var lgsmVolumes = []string{"/data"}

var lgsmDataPaths = map[string]string{
	"serverfiles": "/data/serverfiles",
	"log":         "/data/log",
	"config":      "/data/config-lgsm",
}

// requiredConfigOverrides names game-specific config requirements not
// detectable from the upstream catalog data — e.g. Valheim's dedicated
// server refuses to start without a password. Carried over from the
// original's _REQUIRED_CONFIG_OVERRIDES.
var requiredConfigOverrides = map[string][]string{
	"vhserver": {"serverpassword"},
}

type catalogPort struct {
	Port     int    `json:"port" yaml:"port"`
	Protocol string `json:"protocol" yaml:"protocol"`
}

type catalogEntry struct {
	DisplayName         string            `json:"display_name" yaml:"display_name"`
	ServerCode          string            `json:"server_code" yaml:"server_code"`
	Ports               []catalogPort     `json:"ports" yaml:"ports"`
	DefaultLGSMConfig   map[string]string `json:"default_lgsm_config" yaml:"default_lgsm_config"`
	DefaultInstanceType string            `json:"default_instance_type" yaml:"default_instance_type"`
	MinRAMGB            int               `json:"min_ram_gb" yaml:"min_ram_gb"`
	RCONPort            *int              `json:"rcon_port" yaml:"rcon_port"`
	DiskGB              int               `json:"disk_gb" yaml:"disk_gb"`
	RequiredConfig      []string          `json:"required_config" yaml:"required_config"`
}

// LoadCatalogFile parses a LinuxGSM-style catalog document (the format
// original_source/src/gsm/games/lgsm_catalog.py reads from
// ~/.gsm/lgsm_catalog.json) into catalog-family model.Game descriptors.
// A .yaml/.yml extension selects the YAML decoder; anything else is
// parsed as JSON, the original's only format.
func LoadCatalogFile(path string) ([]model.Game, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read catalog %s: %w", path, err)
	}

	var raw map[string]catalogEntry
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("registry: parse catalog %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("registry: parse catalog %s: %w", path, err)
		}
	}

	games := make([]model.Game, 0, len(raw))
	for name, entry := range raw {
		games = append(games, buildCatalogGame(name, entry))
	}
	return games, nil
}

func buildCatalogGame(name string, entry catalogEntry) model.Game {
	ports := make([]portspec.Spec, 0, len(entry.Ports))
	for _, p := range entry.Ports {
		proto, err := portspec.ParseProtocol(p.Protocol)
		if err != nil {
			continue
		}
		ports = append(ports, portspec.Spec{Port: uint16(p.Port), Protocol: proto})
	}

	g := model.Game{
		Name:                name,
		DisplayName:         entry.DisplayName,
		Image:               fmt.Sprintf("%s:%s", lgsmImage, strings.TrimPrefix(name, "lgsm-")),
		Ports:               ports,
		Defaults:            entry.DefaultLGSMConfig,
		DefaultInstanceType: entry.DefaultInstanceType,
		MinRAMGB:            entry.MinRAMGB,
		Volumes:             append([]string(nil), lgsmVolumes...),
		DataPaths:           copyStringMap(lgsmDataPaths),
		DiskGB:              entry.DiskGB,
		CatalogCode:         entry.ServerCode,
		ExtraArgs:           []string{lgsmRestartPolicy},
	}
	if g.DiskGB == 0 {
		g.DiskGB = 100
	}
	if entry.RCONPort != nil {
		g.RCONPort = *entry.RCONPort
		g.RCONPasswordKey = "rconpassword"
	}

	required := append([]string(nil), entry.RequiredConfig...)
	required = append(required, requiredConfigOverrides[entry.ServerCode]...)
	g.RequiredConfig = dedupe(required)
	return g
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// RegisterCatalog loads path and registers every entry into r.
func RegisterCatalog(r *Registry, path string) error {
	games, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	for _, g := range games {
		r.Register(g)
	}
	return nil
}
