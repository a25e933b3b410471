// Package reconciler implements cross-machine state convergence (spec.md
// §4.2): bringing the local state store into agreement with cloud truth
// across every region this or any peer control-plane host uses. The
// region-paging and id-indexing idiom below is grounded directly on the
// teacher's ec2cluster.go reconcile(), generalized from "is this instance
// still alive" to a full tag-derived field sync, and extended to also
// converge elastic IPs and snapshots.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/sharedkey"
	"github.com/gsmc-io/gsmc/internal/store"
	"github.com/gsmc-io/gsmc/pkg/idgen"
	"github.com/gsmc-io/gsmc/pkg/portspec"
)

const reconcileTTL = 30 * time.Second

type Reconciler struct {
	store   *store.Store
	gateway cloud.Gateway
	keys    *sharedkey.Manager
	log     *zap.Logger
}

func New(st *store.Store, gateway cloud.Gateway, keys *sharedkey.Manager, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{store: st, gateway: gateway, keys: keys, log: log}
}

// regionSet computes the union of local record regions, extraRegions, and
// the shared active-regions parameter, defaulting to {"us-east-1"} if
// empty (spec.md §4.2 "Region set").
func (r *Reconciler) regionSet(ctx context.Context, extraRegions []string) ([]string, error) {
	set := map[string]bool{}
	servers, err := r.store.ListServers()
	if err != nil {
		return nil, fmt.Errorf("reconciler: list local servers: %w", err)
	}
	for _, s := range servers {
		if s.Region != "" {
			set[s.Region] = true
		}
	}
	for _, region := range extraRegions {
		if region != "" {
			set[region] = true
		}
	}
	if r.keys != nil {
		if shared, err := r.keys.ActiveRegions(ctx); err == nil {
			for _, region := range shared {
				set[region] = true
			}
		}
	}
	if len(set) == 0 {
		set["us-east-1"] = true
	}
	regions := make([]string, 0, len(set))
	for region := range set {
		regions = append(regions, region)
	}
	return regions, nil
}

// Reconcile runs the full procedure from spec.md §4.2 across every region
// in play, then touches the TTL sentinel.
func (r *Reconciler) Reconcile(ctx context.Context, extraRegions []string) error {
	regions, err := r.regionSet(ctx, extraRegions)
	if err != nil {
		return err
	}

	cloudIndex := map[string]cloud.Instance{}
	eipIndex := map[string]cloud.Address{}
	for _, region := range regions {
		instances, err := r.gateway.FindTagged(ctx, region)
		if err != nil {
			return fmt.Errorf("reconciler: list tagged instances in %s: %w", region, err)
		}
		for _, inst := range instances {
			if id := inst.Tags[cloud.TagID]; id != "" {
				cloudIndex[id] = inst
			}
		}

		eips, err := r.gateway.FindTaggedEIPs(ctx, region)
		if err != nil {
			return fmt.Errorf("reconciler: list tagged EIPs in %s: %w", region, err)
		}
		for _, eip := range eips {
			eipIndex[eip.AllocationID] = eip
		}
	}

	servers, err := r.store.ListServers()
	if err != nil {
		return fmt.Errorf("reconciler: list local servers: %w", err)
	}
	seen := map[string]bool{}
	for _, local := range servers {
		seen[local.ID] = true
		inst, ok := cloudIndex[local.ID]
		if !ok {
			if err := r.store.DeleteServer(local.ID); err != nil {
				r.log.Warn("reconciler: delete vanished record", zap.String("id", local.ID), zap.Error(err))
			}
			continue
		}
		updated := syncFromTags(local, inst)
		updated.RCONPassword = r.resolveRCONPassword(ctx, local.ID, updated.RCONPassword)
		if err := r.store.SaveServer(updated); err != nil {
			return fmt.Errorf("reconciler: persist synced record %s: %w", local.ID, err)
		}
	}

	for id, inst := range cloudIndex {
		if seen[id] {
			continue
		}
		adopted := adoptFromTags(id, inst)
		adopted.RCONPassword = r.resolveRCONPassword(ctx, id, adopted.RCONPassword)
		if err := r.store.SaveServer(adopted); err != nil {
			return fmt.Errorf("reconciler: persist adopted record %s: %w", id, err)
		}
		r.log.Info("reconciler: adopted cloud instance", zap.String("id", id), zap.String("instance_id", inst.InstanceID))
	}

	if err := r.reconcileSnapshots(ctx, regions); err != nil {
		r.log.Warn("reconciler: snapshot reconciliation failed", zap.Error(err))
	}

	if err := r.reconcileEIPs(eipIndex); err != nil {
		r.log.Warn("reconciler: eip reconciliation failed", zap.Error(err))
	}

	return r.store.TouchReconciled(time.Now())
}

// AutoReconcile runs Reconcile if the TTL sentinel is stale or absent,
// swallowing all errors: stale reads beat failed list views (spec.md
// §4.2's "Auto-reconcile").
func (r *Reconciler) AutoReconcile(ctx context.Context, extraRegions []string) {
	if r.store.ReconcileAge() < reconcileTTL {
		return
	}
	if err := r.Reconcile(ctx, extraRegions); err != nil {
		r.log.Debug("reconciler: auto-reconcile failed, serving stale state", zap.Error(err))
	}
}

// RefreshRecord is the cheaper single-instance path used inside mutating
// Provisioner operations (spec.md §4.2 "Single-record refresh"). It
// returns (nil, nil) if the cloud VM is gone, after deleting the local
// record.
func (r *Reconciler) RefreshRecord(ctx context.Context, id string) (*model.Server, error) {
	local, found, err := r.store.GetServer(id)
	if err != nil {
		return nil, fmt.Errorf("reconciler: read local record %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}

	instances, err := r.gateway.DescribeInstances(ctx, local.Region, []string{local.InstanceID})
	if cloud.IsNotFound(err) || (err == nil && len(instances) == 0) {
		if delErr := r.store.DeleteServer(id); delErr != nil {
			return nil, fmt.Errorf("reconciler: delete absent record %s: %w", id, delErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconciler: describe instance for %s: %w", id, err)
	}

	updated := syncFromTags(local, instances[0])
	updated.RCONPassword = r.resolveRCONPassword(ctx, id, updated.RCONPassword)
	if err := r.store.SaveServer(updated); err != nil {
		return nil, fmt.Errorf("reconciler: persist refreshed record %s: %w", id, err)
	}
	return &updated, nil
}

// resolveRCONPassword fills in a record's RCON password from the cluster
// parameter store when it wasn't carried on the instance tag (spec.md §9,
// O-2's RCONSyncParameterStore mode) — the tag sync above already covers
// RCONSyncTag. A tag value, when present, always wins: tagging is the
// cheaper path and takes priority if both happen to be set.
func (r *Reconciler) resolveRCONPassword(ctx context.Context, id, fromTag string) string {
	if fromTag != "" || r.keys == nil {
		return fromTag
	}
	password, err := r.keys.GetRCONPassword(ctx, id)
	if err != nil {
		r.log.Debug("reconciler: read parameter-store rcon password", zap.String("id", id), zap.Error(err))
		return ""
	}
	return password
}

type regionSnapshot struct {
	cloud.Snapshot
	Region string
}

func (r *Reconciler) reconcileSnapshots(ctx context.Context, regions []string) error {
	cloudByID := map[string]regionSnapshot{}
	for _, region := range regions {
		snaps, err := r.gateway.ListTaggedSnapshots(ctx, region)
		if err != nil {
			return fmt.Errorf("list tagged snapshots in %s: %w", region, err)
		}
		for _, s := range snaps {
			cloudByID[s.SnapshotID] = regionSnapshot{Snapshot: s, Region: region}
		}
	}

	local, err := r.store.ListSnapshots()
	if err != nil {
		return fmt.Errorf("list local snapshots: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range local {
		seen[s.SnapshotID] = true
		if _, ok := cloudByID[s.SnapshotID]; !ok {
			if err := r.store.DeleteSnapshot(s.ID); err != nil {
				r.log.Warn("reconciler: delete vanished snapshot", zap.String("id", s.ID), zap.Error(err))
			}
		}
	}

	for snapID, cs := range cloudByID {
		if seen[snapID] {
			continue
		}
		localID := cs.Tags[cloud.TagSnapshotID]
		if localID == "" {
			var err error
			localID, err = idgen.ShortID()
			if err != nil {
				r.log.Warn("reconciler: mint id for orphan snapshot", zap.String("snapshot_id", snapID), zap.Error(err))
				continue
			}
		}
		rec := model.Snapshot{
			ID:         localID,
			SnapshotID: snapID,
			Game:       cs.Tags[cloud.TagGame],
			ServerName: cs.Tags[cloud.TagName],
			ServerID:   cs.Tags[cloud.TagID],
			Region:     cs.Region,
			Status:     cs.State,
		}
		rec.WithDefaults()
		if err := r.store.SaveSnapshot(rec); err != nil {
			r.log.Warn("reconciler: persist adopted snapshot", zap.String("id", localID), zap.Error(err))
			continue
		}
		r.log.Info("reconciler: adopted orphan snapshot", zap.String("id", localID), zap.String("snapshot_id", snapID))
	}
	return nil
}

func (r *Reconciler) reconcileEIPs(eipIndex map[string]cloud.Address) error {
	servers, err := r.store.ListServers()
	if err != nil {
		return fmt.Errorf("list local servers: %w", err)
	}
	for _, s := range servers {
		if s.EIPAllocationID == "" {
			continue
		}
		if _, ok := eipIndex[s.EIPAllocationID]; ok {
			continue
		}
		id := s.ID
		if err := r.store.UpdateServerField(id, func(rec *model.Server) {
			rec.EIPAllocationID = ""
			rec.EIPPublicIP = ""
		}); err != nil {
			r.log.Warn("reconciler: clear stale eip fields", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// syncFromTags applies tag-derived fields onto an existing local record,
// per spec.md §4.2 step 3, including the "never downgrade the
// container-stopped distinction" rule.
func syncFromTags(local model.Server, inst cloud.Instance) model.Server {
	out := local.Clone()
	newStatus := statusFromInstanceState(inst.State)
	if newStatus == model.StatusRunning && (local.Status == model.StatusStopped || inst.Tags[cloud.TagContainerStopped] == "true") {
		newStatus = model.StatusStopped
	}
	out.Status = newStatus
	out.PublicIP = inst.PublicIP

	if v, ok := inst.Tags[cloud.TagSecurityGroupID]; ok {
		out.SecurityGroupID = v
	}
	if v, ok := inst.Tags[cloud.TagPorts]; ok {
		out.Ports = portsFromTag(v)
	}
	if v, ok := inst.Tags[cloud.TagRCONPassword]; ok {
		out.RCONPassword = v
	}
	if v, ok := inst.Tags[cloud.TagContainerName]; ok {
		out.ContainerName = v
	}
	if v, ok := inst.Tags[cloud.TagLaunchTime]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.LaunchTime = t
		}
	}
	if v, ok := inst.Tags[cloud.TagEIPAllocID]; ok {
		out.EIPAllocationID = v
		if v == "" {
			out.EIPPublicIP = ""
		}
	}
	return out
}

// adoptFromTags constructs a fresh record for a cloud VM discovered on
// this host for the first time (spec.md §4.2 step 4).
func adoptFromTags(id string, inst cloud.Instance) model.Server {
	s := model.Server{ID: id}
	s.Game = inst.Tags[cloud.TagGame]
	s.Name = inst.Tags[cloud.TagName]
	s.InstanceID = inst.InstanceID
	s.PublicIP = inst.PublicIP
	s.SecurityGroupID = inst.Tags[cloud.TagSecurityGroupID]
	s.Ports = portsFromTag(inst.Tags[cloud.TagPorts])
	s.RCONPassword = inst.Tags[cloud.TagRCONPassword]
	s.ContainerName = inst.Tags[cloud.TagContainerName]
	if s.ContainerName == "" {
		s.ContainerName = fmt.Sprintf("gsmc-%s-%s", s.Game, firstN(id, 8))
	}
	if t, err := time.Parse(time.RFC3339, inst.Tags[cloud.TagLaunchTime]); err == nil {
		s.LaunchTime = t
	}
	s.EIPAllocationID = inst.Tags[cloud.TagEIPAllocID]
	s.Status = statusFromInstanceState(inst.State)
	if s.Status == model.StatusRunning && inst.Tags[cloud.TagContainerStopped] == "true" {
		s.Status = model.StatusStopped
	}
	s.WithDefaults()
	return s
}

func statusFromInstanceState(state cloud.InstanceState) model.Status {
	switch state {
	case cloud.InstancePending:
		return model.StatusLaunching
	case cloud.InstanceRunning:
		return model.StatusRunning
	case cloud.InstanceStopping, cloud.InstanceStopped:
		return model.StatusPaused
	default:
		return model.StatusPaused
	}
}

func portsFromTag(tag string) map[string]int {
	set, err := portspec.Parse(tag)
	if err != nil {
		return map[string]int{}
	}
	out := make(map[string]int, len(set))
	for key, spec := range set {
		out[key] = int(spec.Port)
	}
	return out
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
