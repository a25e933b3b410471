package provisioner

import (
	"context"
	"fmt"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/remotehost"
)

// Pause stops a server's container and its cloud instance, billing the
// operator nothing but disk while paused (spec.md §4.1's pause operation).
// Pausing an already-paused server fails rather than succeeding silently.
// The record flips to paused before the instance finishes stopping, so a
// crash mid-pause still leaves an accurate, if eventually-consistent,
// status.
func (p *Provisioner) Pause(ctx context.Context, nameOrID string) (model.Server, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}

	if p.reconciler != nil {
		refreshed, err := p.reconciler.RefreshRecord(ctx, server.ID)
		if err == nil && refreshed == nil {
			return model.Server{}, cloud.NewConfigError("server %q no longer exists", nameOrID)
		}
		if err == nil {
			server = *refreshed
		}
	}

	if server.Status == model.StatusPaused {
		return model.Server{}, cloud.NewConfigError("server %q is already paused", nameOrID)
	}

	if session, err := p.dialServer(ctx, server); err == nil {
		daemon := remotehost.NewContainerDaemon(session)
		if name, err := p.resolveContainer(ctx, &server, daemon); err == nil {
			p.emit("stop-container", "stopping container")
			if err := daemon.Stop(name); err != nil {
				p.log.Sugar().Warnw("provisioner: pause: stop container", "id", server.ID, "err", err)
			}
		}
		session.Close()
	} else {
		p.log.Sugar().Warnw("provisioner: pause: ssh connect failed, stopping instance anyway", "id", server.ID, "err", err)
	}

	p.emit("stop-instance", "stopping cloud instance")
	if err := p.gateway.Stop(ctx, server.Region, server.InstanceID); err != nil {
		if cloud.IsNotFound(err) {
			if delErr := p.store.DeleteServer(server.ID); delErr != nil {
				p.log.Sugar().Warnw("provisioner: pause: delete vanished record", "id", server.ID, "err", delErr)
			}
			return model.Server{}, cloud.NewConfigError("server %q's cloud instance no longer exists", nameOrID)
		}
		if !cloud.IsConflict(err) {
			return model.Server{}, fmt.Errorf("provisioner: stop instance: %w", err)
		}
	}

	server.Status = model.StatusPaused
	if err := p.store.SaveServer(server); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: persist paused status: %w", err)
	}

	if err := p.gateway.WaitStopped(ctx, server.Region, server.InstanceID); err != nil {
		p.log.Sugar().Warnw("provisioner: pause: wait stopped", "id", server.ID, "err", err)
	}
	return server, nil
}

// Resume restarts a paused or container-stopped server (spec.md §4.1's
// resume operation). A paused instance is started, reassociated with its
// pinned IP (or given a fresh dynamic one), and its container restarted;
// a container-stopped-only server just has its container started again.
func (p *Provisioner) Resume(ctx context.Context, nameOrID string) (model.Server, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}
	if server.Status != model.StatusPaused && server.Status != model.StatusStopped {
		return model.Server{}, cloud.NewConfigError("server %q is not paused or stopped", nameOrID)
	}

	if server.Status == model.StatusPaused {
		p.emit("start-instance", "starting cloud instance")
		if err := p.gateway.Start(ctx, server.Region, server.InstanceID); err != nil && !cloud.IsConflict(err) {
			return model.Server{}, fmt.Errorf("provisioner: start instance: %w", err)
		}
		if err := p.gateway.WaitRunning(ctx, server.Region, server.InstanceID); err != nil {
			return model.Server{}, fmt.Errorf("provisioner: wait for running: %w", err)
		}

		if server.HasPinnedIP() {
			p.emit("reassociate-ip", "reassociating pinned elastic IP")
			if err := p.gateway.AssociateEIP(ctx, server.Region, server.EIPAllocationID, server.InstanceID); err != nil {
				p.log.Sugar().Warnw("provisioner: resume: reassociate eip", "id", server.ID, "err", err)
			}
			server.PublicIP = server.EIPPublicIP
		} else {
			ip, err := p.gateway.GetIP(ctx, server.Region, server.InstanceID)
			if err != nil {
				return model.Server{}, fmt.Errorf("provisioner: fetch instance ip: %w", err)
			}
			server.PublicIP = ip
		}

		server.Status = model.StatusRunning
		if err := p.store.SaveServer(server); err != nil {
			return model.Server{}, fmt.Errorf("provisioner: persist running status: %w", err)
		}
	}

	session, err := p.dialServer(ctx, server)
	if err != nil {
		return model.Server{}, &cloud.RemoteFailure{Step: "ssh-connect", Err: err}
	}
	defer session.Close()

	daemon := remotehost.NewContainerDaemon(session)
	name, err := p.resolveContainer(ctx, &server, daemon)
	if err != nil {
		return model.Server{}, err
	}

	p.emit("start-container", "starting container")
	if err := daemon.Start(name); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: restart container on resume: %w", err)
	}
	if err := p.gateway.DeleteTag(ctx, server.Region, server.InstanceID, cloud.TagContainerStopped); err != nil {
		p.log.Sugar().Warnw("provisioner: resume: clear container-stopped tag", "id", server.ID, "err", err)
	}

	return server, nil
}

// StopContainer stops a running server's container without touching the
// cloud instance, tagging the distinction so the reconciler preserves it
// across other machines (spec.md §4.1's stop_container operation, §4.2's
// "preserve stopped" rule).
func (p *Provisioner) StopContainer(ctx context.Context, nameOrID string) (model.Server, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}
	if server.Status != model.StatusRunning {
		return model.Server{}, cloud.NewConfigError("server %q is not running", nameOrID)
	}

	session, err := p.dialServer(ctx, server)
	if err != nil {
		return model.Server{}, &cloud.RemoteFailure{Step: "ssh-connect", Err: err}
	}
	defer session.Close()

	daemon := remotehost.NewContainerDaemon(session)
	name, err := p.resolveContainer(ctx, &server, daemon)
	if err != nil {
		return model.Server{}, err
	}

	p.emit("stop-container", "stopping container")
	if err := daemon.Stop(name); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: stop container: %w", err)
	}
	if err := p.gateway.SetTag(ctx, server.Region, server.InstanceID, cloud.TagContainerStopped, "true"); err != nil {
		p.log.Sugar().Warnw("provisioner: tag container-stopped", "id", server.ID, "err", err)
	}

	server.Status = model.StatusStopped
	if err := p.store.SaveServer(server); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: persist stopped status: %w", err)
	}
	return server, nil
}

// dialServer opens an SSH session to a server's current public IP, the
// shared connect step every container-level operation needs.
func (p *Provisioner) dialServer(ctx context.Context, server model.Server) (*remotehost.Session, error) {
	if server.PublicIP == "" {
		return nil, fmt.Errorf("provisioner: server %s has no public ip", server.ID)
	}
	return p.dialer.Dial(ctx, server.PublicIP+":"+sshPort, sshUser)
}
