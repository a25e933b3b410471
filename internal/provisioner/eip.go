package provisioner

import (
	"context"
	"fmt"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
)

// PinIP allocates an Elastic IP and associates it with the named server,
// giving it a static address that survives stop/start cycles (spec.md
// §4.1's pin_ip operation).
func (p *Provisioner) PinIP(ctx context.Context, nameOrID string) (model.Server, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}
	if server.HasPinnedIP() {
		return model.Server{}, cloud.NewConfigError("server %q already has a pinned IP", nameOrID)
	}

	if err := p.pinIP(ctx, &server); err != nil {
		return model.Server{}, err
	}
	return server, nil
}

// pinIP is the lock-free allocate+associate sequence shared by the public
// PinIP operation and the launch path's --pin-ip flag.
func (p *Provisioner) pinIP(ctx context.Context, server *model.Server) error {
	addr, err := p.gateway.AllocateEIP(ctx, server.Region, server.ID)
	if err != nil {
		return fmt.Errorf("provisioner: allocate elastic ip: %w", err)
	}
	if err := p.gateway.AssociateEIP(ctx, server.Region, addr.AllocationID, server.InstanceID); err != nil {
		// Associate failed: release the orphaned allocation rather than
		// leaking it, per spec.md §4.1's pin_ip rollback rule.
		if releaseErr := p.gateway.ReleaseEIP(ctx, server.Region, addr.AllocationID); releaseErr != nil {
			p.log.Sugar().Warnw("provisioner: release orphaned eip after failed associate",
				"allocation_id", addr.AllocationID, "err", releaseErr)
		}
		return fmt.Errorf("provisioner: associate elastic ip: %w", err)
	}
	if err := p.gateway.SetTag(ctx, server.Region, server.InstanceID, cloud.TagEIPAllocID, addr.AllocationID); err != nil {
		// Tag failure doesn't unwind the association: the local record
		// below still carries the pinned address on this machine. A peer
		// that adopts this instance without the tag records no pinned IP
		// for it; the reconciler does not re-pin.
		p.log.Sugar().Warnw("provisioner: tag instance with eip allocation id",
			"allocation_id", addr.AllocationID, "err", err)
	}

	server.EIPAllocationID = addr.AllocationID
	server.EIPPublicIP = addr.PublicIP
	server.PublicIP = addr.PublicIP
	if err := p.store.SaveServer(*server); err != nil {
		return fmt.Errorf("provisioner: persist pinned ip: %w", err)
	}
	return nil
}

// UnpinIP disassociates and releases a server's Elastic IP, falling back
// to whatever dynamic address the instance now carries.
func (p *Provisioner) UnpinIP(ctx context.Context, nameOrID string) (model.Server, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Server{}, cloud.NewConfigError("server %q not found", nameOrID)
	}
	if !server.HasPinnedIP() {
		return model.Server{}, cloud.NewConfigError("server %q has no pinned IP", nameOrID)
	}

	if err := p.gateway.DisassociateEIP(ctx, server.Region, server.EIPAllocationID); err != nil && !cloud.IsNotFound(err) {
		return model.Server{}, fmt.Errorf("provisioner: disassociate elastic ip: %w", err)
	}
	if err := p.gateway.ReleaseEIP(ctx, server.Region, server.EIPAllocationID); err != nil && !cloud.IsNotFound(err) {
		return model.Server{}, fmt.Errorf("provisioner: release elastic ip: %w", err)
	}
	if err := p.gateway.DeleteTag(ctx, server.Region, server.InstanceID, cloud.TagEIPAllocID); err != nil && !cloud.IsNotFound(err) {
		p.log.Sugar().Warnw("provisioner: delete eip allocation id tag",
			"instance_id", server.InstanceID, "err", err)
	}
	server.EIPAllocationID = ""
	server.EIPPublicIP = ""

	if ip, err := p.gateway.GetIP(ctx, server.Region, server.InstanceID); err == nil {
		server.PublicIP = ip
	}
	if err := p.store.SaveServer(server); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: persist unpinned server: %w", err)
	}
	return server, nil
}

// ListEIPs returns every Elastic IP this tool manages in region, as the
// gateway's tag lookup reports them; local server records are not consulted.
func (p *Provisioner) ListEIPs(ctx context.Context, region string) ([]cloud.Address, error) {
	return p.gateway.FindTaggedEIPs(ctx, region)
}
