package registry

import (
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/pkg/portspec"
)

// Factorio is the one hand-written "native" descriptor carried over
// directly from original_source/src/gsm/games/factorio.py: config lives in
// environment variables, not a catalog-family config file, so CatalogCode
// is left empty.
var Factorio = model.Game{
	Name:        "factorio",
	DisplayName: "Factorio",
	Image:       "factoriotools/factorio",
	Ports: []portspec.Spec{
		{Port: 34197, Protocol: portspec.UDP},
		{Port: 27015, Protocol: portspec.TCP},
	},
	Defaults: map[string]string{
		"GENERATE_NEW_SAVE": "false",
		"SAVE_NAME":         "GSMC Game",
		"LOAD_LATEST_SAVE":  "true",
	},
	DefaultInstanceType: "t3.medium",
	MinRAMGB:            2,
	Volumes:             []string{"/factorio"},
	DataPaths: map[string]string{
		"saves":   "/factorio/saves",
		"config":  "/factorio/config/server-settings.json",
		"mods":    "/factorio/mods",
		"rcon_pw": "/factorio/config/rconpw",
	},
	RCONPort: 27015,
	DiskGB:   100,
}

// RegisterNative adds every hand-written native descriptor to r.
func RegisterNative(r *Registry) {
	r.Register(Factorio)
}
