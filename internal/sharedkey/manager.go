// Package sharedkey implements the cluster-wide SSH key convergence
// protocol and the active-regions set (spec.md §4.6), both backed by the
// cluster parameter store. No control-plane host owns the key: whichever
// host runs first creates it, every later host and peer adopts it.
package sharedkey

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gsmc-io/gsmc/internal/cloud"
)

const rsaBits = 4096

type Manager struct {
	store   ParamStore
	gateway cloud.Gateway
	keyPath string
}

func NewManager(store ParamStore, gateway cloud.Gateway, keyPath string) *Manager {
	return &Manager{store: store, gateway: gateway, keyPath: keyPath}
}

// EnsureKey runs the bootstrap protocol from spec.md §4.6 and returns the
// cluster's shared RSA key, writing it to keyPath with mode 0600.
func (m *Manager) EnsureKey(ctx context.Context) (*rsa.PrivateKey, error) {
	if pemBytes, found, err := m.store.Get(ctx, cloud.ParamSSHPrivateKey); err != nil {
		return nil, fmt.Errorf("sharedkey: read shared key: %w", err)
	} else if found {
		priv, err := decodePEM([]byte(pemBytes))
		if err != nil {
			return nil, fmt.Errorf("sharedkey: decode shared key: %w", err)
		}
		if err := m.writeLocal([]byte(pemBytes)); err != nil {
			return nil, err
		}
		return priv, nil
	}

	if local, err := os.ReadFile(m.keyPath); err == nil {
		priv, err := decodePEM(local)
		if err != nil {
			return nil, fmt.Errorf("sharedkey: decode local key: %w", err)
		}
		if err := m.store.Create(ctx, cloud.ParamSSHPrivateKey, string(local), true); err != nil {
			if err == ErrParameterExists {
				return m.adoptPeerKey(ctx)
			}
			return nil, fmt.Errorf("sharedkey: upload local key: %w", err)
		}
		return priv, nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("sharedkey: generate key: %w", err)
	}
	pemBytes := encodePEM(priv)
	if err := m.writeLocal(pemBytes); err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, cloud.ParamSSHPrivateKey, string(pemBytes), true); err != nil {
		if err == ErrParameterExists {
			return m.adoptPeerKey(ctx)
		}
		return nil, fmt.Errorf("sharedkey: upload generated key: %w", err)
	}
	return priv, nil
}

// adoptPeerKey is step 2/3's race-loser path: a peer already wrote the
// parameter, so fetch and adopt it as local truth.
func (m *Manager) adoptPeerKey(ctx context.Context) (*rsa.PrivateKey, error) {
	pemBytes, found, err := m.store.Get(ctx, cloud.ParamSSHPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sharedkey: re-read peer key: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("sharedkey: peer key vanished after ParameterAlreadyExists race")
	}
	priv, err := decodePEM([]byte(pemBytes))
	if err != nil {
		return nil, fmt.Errorf("sharedkey: decode peer key: %w", err)
	}
	if err := m.writeLocal([]byte(pemBytes)); err != nil {
		return nil, err
	}
	return priv, nil
}

func (m *Manager) writeLocal(pemBytes []byte) error {
	if err := os.MkdirAll(filepath.Dir(m.keyPath), 0o700); err != nil {
		return fmt.Errorf("sharedkey: create key dir: %w", err)
	}
	if err := os.WriteFile(m.keyPath, pemBytes, 0o600); err != nil {
		return fmt.Errorf("sharedkey: write local key: %w", err)
	}
	return nil
}

func encodePEM(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

func decodePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// Fingerprint computes the MD5-of-DER-encoded-public-key fingerprint AWS
// uses for imported key pairs, formatted as colon-separated hex pairs.
func Fingerprint(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("sharedkey: marshal public key: %w", err)
	}
	sum := md5.Sum(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":"), nil
}

func publicKeyDER(priv *rsa.PrivateKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&priv.PublicKey)
}

// EnsureCloudKeyPair makes the region's EC2 key-pair object match priv by
// fingerprint, re-importing on any mismatch (spec.md §4.6).
func (m *Manager) EnsureCloudKeyPair(ctx context.Context, region, keyName string, priv *rsa.PrivateKey) error {
	want, err := Fingerprint(priv)
	if err != nil {
		return err
	}
	der, err := publicKeyDER(priv)
	if err != nil {
		return err
	}

	got, err := m.gateway.KeyPairFingerprint(ctx, region, keyName)
	if cloud.IsNotFound(err) {
		return m.gateway.ImportKeyPair(ctx, region, keyName, der)
	}
	if err != nil {
		return fmt.Errorf("sharedkey: describe cloud key pair: %w", err)
	}
	if got == want {
		return nil
	}
	if err := m.gateway.DeleteKeyPair(ctx, region, keyName); err != nil {
		return fmt.Errorf("sharedkey: delete stale cloud key pair: %w", err)
	}
	return m.gateway.ImportKeyPair(ctx, region, keyName, der)
}

// --- RCON password parameter-store sync (spec.md §9, O-2) ---

// PutRCONPassword writes server's RCON password to the cluster parameter
// store as a SecureString, the config.RCONSyncParameterStore alternative
// to tagging the instance directly.
func (m *Manager) PutRCONPassword(ctx context.Context, serverID, password string) error {
	return m.store.Put(ctx, cloud.ParamRCONPassword(serverID), password, true)
}

// GetRCONPassword reads serverID's RCON password back from the parameter
// store, returning "" if none was ever written there.
func (m *Manager) GetRCONPassword(ctx context.Context, serverID string) (string, error) {
	v, found, err := m.store.Get(ctx, cloud.ParamRCONPassword(serverID))
	if err != nil {
		return "", err
	}
	if !found {
		return "", nil
	}
	return v, nil
}

// DeleteRCONPassword removes serverID's parameter-store RCON password,
// called once its server record is destroyed.
func (m *Manager) DeleteRCONPassword(ctx context.Context, serverID string) error {
	return m.store.Delete(ctx, cloud.ParamRCONPassword(serverID))
}

// --- active regions ---

func parseRegionSet(raw string) map[string]bool {
	set := map[string]bool{}
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			set[r] = true
		}
	}
	return set
}

func serializeRegionSet(set map[string]bool) string {
	regions := make([]string, 0, len(set))
	for r := range set {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return strings.Join(regions, ",")
}

// AddActiveRegion idempotently adds region to the cluster's active-regions
// set, called right after a successful run-instance (spec.md §4.6).
func (m *Manager) AddActiveRegion(ctx context.Context, region string) error {
	raw, found, err := m.store.Get(ctx, cloud.ParamActiveRegions)
	if err != nil {
		return fmt.Errorf("sharedkey: read active regions: %w", err)
	}
	set := map[string]bool{}
	if found {
		set = parseRegionSet(raw)
	}
	if set[region] {
		return nil
	}
	set[region] = true
	return m.store.Put(ctx, cloud.ParamActiveRegions, serializeRegionSet(set), false)
}

// RemoveActiveRegion drops region from the set and deletes the parameter
// entirely once the set is empty. Callers must only invoke this once
// they've confirmed no local record still references region (spec.md
// §4.6's "no-op while any local record still lives in that region" is the
// caller's responsibility, since only the caller's store knows that).
func (m *Manager) RemoveActiveRegion(ctx context.Context, region string) error {
	raw, found, err := m.store.Get(ctx, cloud.ParamActiveRegions)
	if err != nil {
		return fmt.Errorf("sharedkey: read active regions: %w", err)
	}
	if !found {
		return nil
	}
	set := parseRegionSet(raw)
	if !set[region] {
		return nil
	}
	delete(set, region)
	if len(set) == 0 {
		return m.store.Delete(ctx, cloud.ParamActiveRegions)
	}
	return m.store.Put(ctx, cloud.ParamActiveRegions, serializeRegionSet(set), false)
}

// ActiveRegions returns the current set, sorted.
func (m *Manager) ActiveRegions(ctx context.Context) ([]string, error) {
	raw, found, err := m.store.Get(ctx, cloud.ParamActiveRegions)
	if err != nil {
		return nil, fmt.Errorf("sharedkey: read active regions: %w", err)
	}
	if !found {
		return nil, nil
	}
	set := parseRegionSet(raw)
	regions := make([]string, 0, len(set))
	for r := range set {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions, nil
}
