package model

import "github.com/gsmc-io/gsmc/pkg/portspec"

// Game is an immutable capability descriptor for one supported game,
// registered once at startup (spec.md §3, §4.7).
type Game struct {
	Name               string
	DisplayName        string
	Image              string
	Ports              []portspec.Spec
	Defaults           map[string]string
	DefaultInstanceType string
	MinRAMGB           int
	Volumes            []string
	// DataPaths maps a logical name ("config", "saves", ...) to the
	// in-container path a volume is mounted at.
	DataPaths map[string]string
	RCONPort           int  // 0 means "no rcon port"
	RCONPasswordKey    string
	// PasswordKeys are config keys that must hold an auto-generated secret
	// when the operator doesn't supply one.
	PasswordKeys    []string
	DiskGB          int
	RequiredConfig  []string
	ExtraArgs       []string
	// CatalogCode selects the catalog-family launch path (spec.md §4.1) when
	// non-empty. Catalog-family config is written as a file inside the
	// container at <DataPaths["config"]>/<CatalogCode>/common.cfg; native
	// game config is the container's environment.
	CatalogCode string
}

// IsCatalogFamily reports whether this descriptor uses the file-based
// catalog-family config path rather than environment variables.
func (g Game) IsCatalogFamily() bool {
	return g.CatalogCode != ""
}

// HasRCON reports whether the game exposes an RCON-style admin port.
func (g Game) HasRCON() bool {
	return g.RCONPort != 0
}

// MergeDefaults returns a fresh copy of the game's default config, suitable
// as the starting point for Provisioner.Launch's config-merge step.
func (g Game) MergeDefaults() map[string]string {
	out := make(map[string]string, len(g.Defaults))
	for k, v := range g.Defaults {
		out[k] = v
	}
	return out
}
