// Package cloudfake implements an in-memory cloud.Gateway for tests, the
// same role fakes play in the teacher's own pool/client plumbing: a
// dependency substitute that lets reconciler/provisioner tests exercise
// real control flow without a network call.
package cloudfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/gsmc-io/gsmc/internal/cloud"
)

type Gateway struct {
	mu sync.Mutex

	Instances map[string]cloud.Instance // key: instanceID
	EIPs      map[string]cloud.Address  // key: allocationID
	Snapshots map[string]cloud.Snapshot // key: snapshotID
	Images    map[string]cloud.Image

	NextInstanceSeq int
	NextEIPSeq      int
	NextSnapshotSeq int
	VPCID           string
	SubnetID        string

	KeyFingerprints map[string]string
}

func New() *Gateway {
	return &Gateway{
		Instances:       map[string]cloud.Instance{},
		EIPs:            map[string]cloud.Address{},
		Snapshots:       map[string]cloud.Snapshot{},
		Images:          map[string]cloud.Image{},
		KeyFingerprints: map[string]string{},
		VPCID:           "vpc-fake",
		SubnetID:        "subnet-fake",
	}
}

func (g *Gateway) GetLatestBaseImage(ctx context.Context, region string) (cloud.Image, error) {
	return cloud.Image{ImageID: "ami-fakebase", State: "available"}, nil
}

func (g *Gateway) RegisterImageFromSnapshot(ctx context.Context, region, name, snapshotID string) (cloud.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("ami-restore-%s", snapshotID)
	img := cloud.Image{ImageID: id, State: "available"}
	g.Images[id] = img
	return img, nil
}

func (g *Gateway) DeregisterImage(ctx context.Context, region, imageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.Images, imageID)
	return nil
}

func (g *Gateway) FindImagesUsingSnapshot(ctx context.Context, region, snapshotID string) ([]cloud.Image, error) {
	return nil, nil
}

func (g *Gateway) FindToolImages(ctx context.Context, region string) ([]cloud.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]cloud.Image, 0, len(g.Images))
	for _, img := range g.Images {
		out = append(out, img)
	}
	return out, nil
}

func (g *Gateway) RunInstance(ctx context.Context, p cloud.RunInstanceParams) (cloud.Instance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.NextInstanceSeq++
	inst := cloud.Instance{
		InstanceID:   fmt.Sprintf("i-fake%04d", g.NextInstanceSeq),
		State:        cloud.InstanceRunning,
		PublicIP:     fmt.Sprintf("203.0.113.%d", g.NextInstanceSeq%255),
		Tags:         cloneTags(p.Tags),
		RootVolumeID: fmt.Sprintf("vol-fake%04d", g.NextInstanceSeq),
	}
	g.Instances[inst.InstanceID] = inst
	return inst, nil
}

func (g *Gateway) FindTagged(ctx context.Context, region string) ([]cloud.Instance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]cloud.Instance, 0, len(g.Instances))
	for _, inst := range g.Instances {
		if inst.Tags[cloud.TagID] != "" && inst.State != cloud.InstanceTerminated && inst.State != cloud.InstanceShuttingDown {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (g *Gateway) DescribeInstances(ctx context.Context, region string, ids []string) ([]cloud.Instance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []cloud.Instance
	for _, id := range ids {
		if inst, ok := g.Instances[id]; ok {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (g *Gateway) Terminate(ctx context.Context, region, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	inst.State = cloud.InstanceTerminated
	g.Instances[instanceID] = inst
	return nil
}

func (g *Gateway) Stop(ctx context.Context, region, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	inst.State = cloud.InstanceStopped
	g.Instances[instanceID] = inst
	return nil
}

func (g *Gateway) Start(ctx context.Context, region, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	inst.State = cloud.InstanceRunning
	g.Instances[instanceID] = inst
	return nil
}

func (g *Gateway) WaitRunning(ctx context.Context, region, instanceID string) error { return nil }
func (g *Gateway) WaitStopped(ctx context.Context, region, instanceID string) error { return nil }

func (g *Gateway) GetIP(ctx context.Context, region, instanceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return "", &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	return inst.PublicIP, nil
}

func (g *Gateway) SetTag(ctx context.Context, region, instanceID, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	if inst.Tags == nil {
		inst.Tags = map[string]string{}
	}
	inst.Tags[key] = value
	g.Instances[instanceID] = inst
	return nil
}

func (g *Gateway) DeleteTag(ctx context.Context, region, instanceID, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	delete(inst.Tags, key)
	g.Instances[instanceID] = inst
	return nil
}

func (g *Gateway) GetRootVolumeID(ctx context.Context, region, instanceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.Instances[instanceID]
	if !ok {
		return "", &cloud.NotFound{Resource: "instance", ID: instanceID}
	}
	return inst.RootVolumeID, nil
}

func (g *Gateway) GetOrCreateSecurityGroup(ctx context.Context, region, game string, ports []cloud.PortRule, vpcID string) (string, error) {
	return fmt.Sprintf("sg-fake-%s", game), nil
}

func (g *Gateway) AllocateEIP(ctx context.Context, region, serverID string) (cloud.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.NextEIPSeq++
	addr := cloud.Address{
		AllocationID: fmt.Sprintf("eipalloc-fake%04d", g.NextEIPSeq),
		PublicIP:     fmt.Sprintf("198.51.100.%d", g.NextEIPSeq%255),
		Tags:         map[string]string{cloud.TagID: serverID},
	}
	g.EIPs[addr.AllocationID] = addr
	return addr, nil
}

func (g *Gateway) AssociateEIP(ctx context.Context, region, allocationID, instanceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	addr, ok := g.EIPs[allocationID]
	if !ok {
		return &cloud.NotFound{Resource: "eip", ID: allocationID}
	}
	addr.AssociationID = "eipassoc-fake-" + instanceID
	g.EIPs[allocationID] = addr
	return nil
}

func (g *Gateway) DisassociateEIP(ctx context.Context, region, allocationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	addr, ok := g.EIPs[allocationID]
	if !ok {
		return nil
	}
	addr.AssociationID = ""
	g.EIPs[allocationID] = addr
	return nil
}

func (g *Gateway) ReleaseEIP(ctx context.Context, region, allocationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.EIPs, allocationID)
	return nil
}

func (g *Gateway) FindTaggedEIPs(ctx context.Context, region string) ([]cloud.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]cloud.Address, 0, len(g.EIPs))
	for _, a := range g.EIPs {
		out = append(out, a)
	}
	return out, nil
}

func (g *Gateway) CreateSnapshot(ctx context.Context, region, volumeID, description string, tags map[string]string) (cloud.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.NextSnapshotSeq++
	snap := cloud.Snapshot{
		SnapshotID: fmt.Sprintf("snap-fake%04d", g.NextSnapshotSeq),
		State:      "completed",
		VolumeID:   volumeID,
		Tags:       cloneTags(tags),
	}
	g.Snapshots[snap.SnapshotID] = snap
	return snap, nil
}

func (g *Gateway) WaitSnapshotCompleted(ctx context.Context, region, snapshotID string) error {
	return nil
}

func (g *Gateway) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.Snapshots, snapshotID)
	return nil
}

func (g *Gateway) ListTaggedSnapshots(ctx context.Context, region string) ([]cloud.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]cloud.Snapshot, 0, len(g.Snapshots))
	for _, s := range g.Snapshots {
		out = append(out, s)
	}
	return out, nil
}

func (g *Gateway) DefaultVPCAndSubnet(ctx context.Context, region string) (string, string, error) {
	return g.VPCID, g.SubnetID, nil
}

func (g *Gateway) ImportKeyPair(ctx context.Context, region, keyName string, publicKeyDER []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.KeyFingerprints[keyName] = fmt.Sprintf("fp-%x", publicKeyDER[:min(len(publicKeyDER), 4)])
	return nil
}

func (g *Gateway) DeleteKeyPair(ctx context.Context, region, keyName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.KeyFingerprints, keyName)
	return nil
}

func (g *Gateway) KeyPairFingerprint(ctx context.Context, region, keyName string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fp, ok := g.KeyFingerprints[keyName]
	if !ok {
		return "", &cloud.NotFound{Resource: "keypair", ID: keyName}
	}
	return fp, nil
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
