package provisioner

import (
	"context"
	"fmt"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/config"
)

// Destroy terminates a server's cloud instance, releases any pinned
// Elastic IP, and deletes its local record (spec.md §4.1's destroy
// operation). A failure tearing down the instance leaves the record in
// place so the operator can retry.
func (p *Provisioner) Destroy(ctx context.Context, nameOrID string) error {
	defer p.lock()()
	return p.destroyLocked(ctx, nameOrID)
}

func (p *Provisioner) destroyLocked(ctx context.Context, nameOrID string) error {
	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return cloud.NewConfigError("server %q not found", nameOrID)
	}

	if p.reconciler != nil {
		refreshed, err := p.reconciler.RefreshRecord(ctx, server.ID)
		if err == nil && refreshed == nil {
			// Reconcile-refresh found the instance already gone; the
			// record has already been deleted for us.
			return nil
		}
		if err == nil {
			server = *refreshed
		}
	}

	if server.HasPinnedIP() {
		p.emit("release-ip", "releasing pinned elastic IP")
		if err := p.gateway.DisassociateEIP(ctx, server.Region, server.EIPAllocationID); err != nil && !cloud.IsNotFound(err) {
			p.log.Sugar().Warnw("provisioner: destroy: disassociate eip", "id", server.ID, "err", err)
		}
		if err := p.gateway.ReleaseEIP(ctx, server.Region, server.EIPAllocationID); err != nil && !cloud.IsNotFound(err) {
			p.log.Sugar().Warnw("provisioner: destroy: release eip", "id", server.ID, "err", err)
		}
	}

	p.emit("terminate", "terminating cloud instance")
	if err := p.gateway.Terminate(ctx, server.Region, server.InstanceID); err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("provisioner: terminate instance: %w", err)
	}

	if err := p.store.DeleteServer(server.ID); err != nil {
		return fmt.Errorf("provisioner: delete server record: %w", err)
	}

	if p.keys != nil {
		if p.cfg.RCONSyncMode == config.RCONSyncParameterStore {
			if err := p.keys.DeleteRCONPassword(ctx, server.ID); err != nil {
				p.log.Sugar().Warnw("provisioner: destroy: delete parameter-store rcon password", "id", server.ID, "err", err)
			}
		}
		p.releaseRegionIfEmpty(ctx, server.Region)
	}
	return nil
}

// releaseRegionIfEmpty drops region from the shared active-regions set
// once no local record still lives there, best-effort per spec.md §4.1's
// destroy operation.
func (p *Provisioner) releaseRegionIfEmpty(ctx context.Context, region string) {
	servers, err := p.store.ListServers()
	if err != nil {
		p.log.Sugar().Warnw("provisioner: destroy: list servers for region cleanup", "region", region, "err", err)
		return
	}
	for _, s := range servers {
		if s.Region == region {
			return
		}
	}
	if err := p.keys.RemoveActiveRegion(ctx, region); err != nil {
		p.log.Sugar().Warnw("provisioner: destroy: remove active region", "region", region, "err", err)
	}
}

// DestroyAll reconciles, then destroys every known server. Reconcile runs
// unconditionally, not TTL-gated, so a fleet sweep always discovers
// cross-machine records before tearing the fleet down (spec.md §4.1's
// destroy_all "reconcile first"). A failure on one record does not stop
// the sweep; all errors are aggregated and the failing records are left
// intact for a retry.
func (p *Provisioner) DestroyAll(ctx context.Context) []error {
	defer p.lock()()

	if p.reconciler != nil {
		if err := p.reconciler.Reconcile(ctx, nil); err != nil {
			p.log.Sugar().Warnw("provisioner: destroy-all: reconcile before sweep failed", "err", err)
		}
	}

	servers, err := p.store.ListServers()
	if err != nil {
		return []error{fmt.Errorf("provisioner: list servers: %w", err)}
	}

	var errs []error
	for _, s := range servers {
		if err := p.destroyLocked(ctx, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", s.Name, err))
		}
	}
	return errs
}
