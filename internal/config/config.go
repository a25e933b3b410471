// Package config loads gsmc's configuration from flags, environment
// variables, and an optional config file via viper, the way
// cloudnative-pg-cloudnative-pg and mattermost-mattermost-cloud layer
// spf13/viper under a spf13/cobra command tree.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RCONSyncMode selects how the Provisioner propagates an RCON password
// across control-plane hosts (SPEC_FULL.md §9, O-2).
type RCONSyncMode string

const (
	RCONSyncTag            RCONSyncMode = "tag"
	RCONSyncParameterStore RCONSyncMode = "parameter-store"
)

func (m RCONSyncMode) Valid() bool {
	return m == RCONSyncTag || m == RCONSyncParameterStore
}

// Config is gsmc's resolved runtime configuration.
type Config struct {
	StateDir         string       `mapstructure:"state_dir"`
	DefaultRegion    string       `mapstructure:"default_region"`
	SSHCIDR          string       `mapstructure:"ssh_cidr"`
	RCONSyncMode     RCONSyncMode `mapstructure:"rcon_sync_mode"`
	ReconcileTTL     int          `mapstructure:"reconcile_ttl_seconds"`
	CatalogPath      string       `mapstructure:"catalog_path"`
	HTTPAddr         string       `mapstructure:"http_addr"`
	ReconcileCron    string       `mapstructure:"reconcile_cron"`
}

const (
	defaultSSHCIDR      = "0.0.0.0/0"
	defaultRegion       = "us-east-1"
	defaultReconcileTTL = 30
	defaultHTTPAddr     = ":8080"
	defaultCron         = "@every 1m"
)

// BindFlags registers gsmc's global configuration flags onto fs and binds
// them into v, the cobra/viper wiring cloudnative-pg-cloudnative-pg uses
// for its operator flags.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("state-dir", "", "local state directory (default ~/.gsmc)")
	fs.String("default-region", defaultRegion, "cloud region used when none is specified")
	fs.String("ssh-cidr", defaultSSHCIDR, "CIDR allowed to reach the SSH port on managed security groups")
	fs.String("rcon-sync-mode", string(RCONSyncTag), "how RCON passwords propagate across hosts: tag|parameter-store")
	fs.Int("reconcile-ttl-seconds", defaultReconcileTTL, "auto-reconcile staleness threshold (not read by the reconciler, which uses a fixed 30s)")
	fs.String("catalog-path", "", "path to a catalog-family games JSON file")
	fs.String("http-addr", defaultHTTPAddr, "listen address for the HTTP API")
	fs.String("reconcile-cron", defaultCron, "cron schedule for `gsmc reconcile --watch`")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// Load resolves Config from v, which must already have flags bound via
// BindFlags and, optionally, a config file read in.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("gsmc")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("default_region", defaultRegion)
	v.SetDefault("ssh_cidr", defaultSSHCIDR)
	v.SetDefault("rcon_sync_mode", string(RCONSyncTag))
	v.SetDefault("reconcile_ttl_seconds", defaultReconcileTTL)
	v.SetDefault("http_addr", defaultHTTPAddr)
	v.SetDefault("reconcile_cron", defaultCron)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if !c.RCONSyncMode.Valid() {
		return nil, fmt.Errorf("config: invalid rcon_sync_mode %q", c.RCONSyncMode)
	}
	if c.SSHCIDR == "" {
		c.SSHCIDR = defaultSSHCIDR
	}
	return &c, nil
}
