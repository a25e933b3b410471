package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/pkg/idgen"
)

// Snapshot captures a server's root volume as a provider-side snapshot,
// recording the server's current config and RCON password alongside it so
// a later Restore doesn't depend on the legacy in-VM metadata file (spec.md
// §4.1's snapshot operation).
func (p *Provisioner) Snapshot(ctx context.Context, nameOrID string) (model.Snapshot, error) {
	defer p.lock()()

	server, found, err := p.store.GetServerByNameOrID(nameOrID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: lookup server: %w", err)
	}
	if !found {
		return model.Snapshot{}, cloud.NewConfigError("server %q not found", nameOrID)
	}

	p.emit("resolve-volume", "resolving root volume")
	volumeID, err := p.gateway.GetRootVolumeID(ctx, server.Region, server.InstanceID)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: resolve root volume: %w", err)
	}

	id, err := idgen.ShortID()
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: allocate snapshot id: %w", err)
	}

	p.emit("create-snapshot", "creating cloud snapshot")
	desc := fmt.Sprintf("gsmc snapshot of %s (%s)", server.Name, server.ID)
	snap, err := p.gateway.CreateSnapshot(ctx, server.Region, volumeID, desc, snapshotTags(server, id))
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: create snapshot: %w", err)
	}

	p.emit("wait-snapshot", "waiting for snapshot to complete")
	if err := p.gateway.WaitSnapshotCompleted(ctx, server.Region, snap.SnapshotID); err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: wait for snapshot: %w", err)
	}

	rec := model.Snapshot{
		ID:           id,
		SnapshotID:   snap.SnapshotID,
		Game:         server.Game,
		ServerName:   server.Name,
		ServerID:     server.ID,
		Region:       server.Region,
		Status:       "completed",
		CreatedAt:    time.Now().UTC(),
		Config:       server.Config,
		RCONPassword: server.RCONPassword,
	}
	if err := p.store.SaveSnapshot(rec); err != nil {
		return model.Snapshot{}, fmt.Errorf("provisioner: persist snapshot record: %w", err)
	}
	return rec, nil
}

// DeleteSnapshot removes a snapshot record: any temporary AMI still
// registered against it is deregistered first, then the provider-side
// snapshot and the local record are removed.
func (p *Provisioner) DeleteSnapshot(ctx context.Context, id string) error {
	defer p.lock()()

	snap, found, err := p.store.GetSnapshot(id)
	if err != nil {
		return fmt.Errorf("provisioner: lookup snapshot: %w", err)
	}
	if !found {
		return cloud.NewConfigError("snapshot %q not found", id)
	}

	images, err := p.gateway.FindImagesUsingSnapshot(ctx, snap.Region, snap.SnapshotID)
	if err != nil {
		p.log.Sugar().Warnw("provisioner: delete snapshot: find dependent images", "id", id, "err", err)
	}
	for _, img := range images {
		if err := p.gateway.DeregisterImage(ctx, snap.Region, img.ImageID); err != nil {
			p.log.Sugar().Warnw("provisioner: delete snapshot: deregister dependent image", "id", id, "image_id", img.ImageID, "err", err)
		}
	}

	if err := p.gateway.DeleteSnapshot(ctx, snap.Region, snap.SnapshotID); err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("provisioner: delete cloud snapshot: %w", err)
	}
	if err := p.store.DeleteSnapshot(id); err != nil {
		return fmt.Errorf("provisioner: delete snapshot record: %w", err)
	}
	return nil
}

// Restore launches a new server from a snapshot; it is plain Launch with
// FromSnapshot set, so the two operations share the same cleanup contract.
func (p *Provisioner) Restore(ctx context.Context, snapshotID string, params LaunchParams) (model.Server, error) {
	params.FromSnapshot = snapshotID
	return p.Launch(ctx, params)
}
