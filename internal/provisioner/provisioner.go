// Package provisioner implements the Provisioner: the orchestrator that
// owns every server and snapshot record's lifecycle (spec.md §4.1). It
// sequences cloud-resource-gateway calls and a remote-host bootstrap into
// an atomic-looking "launch", and exposes destroy/pause/resume/snapshot/
// pin-ip as single-threaded, sequenced operations (spec.md §5's "a single
// control-plane process performs one mutating operation at a time").
package provisioner

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/config"
	"github.com/gsmc-io/gsmc/internal/reconciler"
	"github.com/gsmc-io/gsmc/internal/registry"
	"github.com/gsmc-io/gsmc/internal/remotehost"
	"github.com/gsmc-io/gsmc/internal/sharedkey"
	"github.com/gsmc-io/gsmc/internal/store"
)

// StatusEvent is one progress event emitted during a mutating operation,
// the observable unit spec.md §6 calls "a distinct progress event".
type StatusEvent struct {
	Step    string
	Message string
}

type StatusFunc func(StatusEvent)

// Dialer opens a remote host session. The returned Session always wraps a
// live SSH connection, so a substitute Dialer can refuse a dial but cannot
// fake a working host.
type Dialer interface {
	Dial(ctx context.Context, addr, user string) (*remotehost.Session, error)
}

// sshDialer is the production Dialer: real golang.org/x/crypto/ssh
// sessions authenticated with the cluster's shared RSA key.
type sshDialer struct {
	priv  *rsa.PrivateKey
	debug remotehost.DebugFunc
}

func NewSSHDialer(priv *rsa.PrivateKey, debug remotehost.DebugFunc) Dialer {
	return &sshDialer{priv: priv, debug: debug}
}

func (d *sshDialer) Dial(ctx context.Context, addr, user string) (*remotehost.Session, error) {
	signer, err := ssh.NewSignerFromKey(d.priv)
	if err != nil {
		return nil, fmt.Errorf("provisioner: build SSH signer: %w", err)
	}
	return remotehost.Dial(ctx, addr, user, signer, d.debug)
}

const sshUser = "gsmc"
const sshPort = "22"

// Provisioner is the public facade; every exported method is one spec.md
// §4.1 operation. Callers are expected to invoke at most one method at a
// time (spec.md §5's single-writer contract).
type Provisioner struct {
	mu sync.Mutex

	store      *store.Store
	gateway    cloud.Gateway
	keys       *sharedkey.Manager
	registry   *registry.Registry
	reconciler *reconciler.Reconciler
	dialer     Dialer
	cfg        *config.Config
	log        *zap.Logger

	onStatus StatusFunc
	onDebug  remotehost.DebugFunc
}

func New(
	st *store.Store,
	gateway cloud.Gateway,
	keys *sharedkey.Manager,
	reg *registry.Registry,
	rec *reconciler.Reconciler,
	dialer Dialer,
	cfg *config.Config,
	log *zap.Logger,
) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{
		store:      st,
		gateway:    gateway,
		keys:       keys,
		registry:   reg,
		reconciler: rec,
		dialer:     dialer,
		cfg:        cfg,
		log:        log,
	}
}

func (p *Provisioner) OnStatus(fn StatusFunc)            { p.onStatus = fn }
func (p *Provisioner) OnDebug(fn remotehost.DebugFunc)    { p.onDebug = fn }

func (p *Provisioner) emit(step, message string) {
	if p.onStatus != nil {
		p.onStatus(StatusEvent{Step: step, Message: message})
	}
	p.log.Debug("provisioner: step", zap.String("step", step), zap.String("message", message))
}

// lock serializes mutating operations on this process, matching spec.md
// §5's "a single control-plane process performs one mutating operation at
// a time" — cross-process coordination is left to cloud tags, per §5.
func (p *Provisioner) lock() func() {
	p.mu.Lock()
	return p.mu.Unlock
}
