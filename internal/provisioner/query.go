package provisioner

import (
	"context"
	"fmt"
	"sort"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/remotehost"
)

// ListServers runs a TTL-gated auto-reconcile (when a reconciler is
// configured) and returns every local server record, sorted by name.
// Read-only operations don't take the mutating-operation lock; the store's
// own per-table lock file still serializes concurrent readers and writers
// across processes.
func (p *Provisioner) ListServers() ([]model.Server, error) {
	if p.reconciler != nil {
		p.reconciler.AutoReconcile(context.Background(), nil)
	}
	servers, err := p.store.ListServers()
	if err != nil {
		return nil, fmt.Errorf("provisioner: list servers: %w", err)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// GetServer runs a TTL-gated auto-reconcile (when a reconciler is
// configured) and looks up one server by id, name, or id prefix.
func (p *Provisioner) GetServer(nameOrID string) (model.Server, error) {
	if p.reconciler != nil {
		p.reconciler.AutoReconcile(context.Background(), nil)
	}
	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}
	return server, nil
}

// ListSnapshots returns every local snapshot record.
func (p *Provisioner) ListSnapshots() ([]model.Snapshot, error) {
	snaps, err := p.store.ListSnapshots()
	if err != nil {
		return nil, fmt.Errorf("provisioner: list snapshots: %w", err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

// SendCommand forwards an admin/RCON command to a running server's
// container, the supplemental operation SPEC_FULL.md adds for parity with
// the original's in-game command console.
func (p *Provisioner) SendCommand(ctx context.Context, nameOrID, command string) (string, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return "", fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return "", cloud.NewConfigError("server %q not found", nameOrID)
	}
	if server.Status != model.StatusRunning {
		return "", cloud.NewConfigError("server %q is not running", nameOrID)
	}

	session, err := p.dialServer(ctx, server)
	if err != nil {
		return "", &cloud.RemoteFailure{Step: "ssh-connect", Err: err}
	}
	defer session.Close()

	daemon := remotehost.NewContainerDaemon(session)
	name, err := p.resolveContainer(ctx, &server, daemon)
	if err != nil {
		return "", err
	}

	game, ok := p.registry.Get(server.Game)
	if !ok || !game.HasRCON() {
		out, err := daemon.Exec(name, "send-command", command)
		if err != nil {
			return "", fmt.Errorf("provisioner: send command: %w", err)
		}
		return out, nil
	}

	out, err := daemon.Exec(name, "rcon-cli", command)
	if err != nil {
		return "", fmt.Errorf("provisioner: send rcon command: %w", err)
	}
	return out, nil
}

// Logs returns the container's recent log output.
func (p *Provisioner) Logs(ctx context.Context, nameOrID string, tail int) (string, error) {
	server, err := p.GetServer(nameOrID)
	if err != nil {
		return "", err
	}
	if server.Status != model.StatusRunning {
		return "", cloud.NewConfigError("server %q is not running", nameOrID)
	}

	session, err := p.dialServer(ctx, server)
	if err != nil {
		return "", &cloud.RemoteFailure{Step: "ssh-connect", Err: err}
	}
	defer session.Close()

	daemon := remotehost.NewContainerDaemon(session)
	name, err := p.resolveContainer(ctx, &server, daemon)
	if err != nil {
		return "", err
	}
	out, err := daemon.Logs(name, tail)
	if err != nil {
		return "", fmt.Errorf("provisioner: fetch logs: %w", err)
	}
	return out, nil
}
