// Package cloud wraps github.com/aws/aws-sdk-go-v2/service/ec2 behind the
// typed Gateway interface (spec.md §4.4). No business logic lives here:
// every method is a thin, region-scoped translation between cloud.* types
// and the SDK's request/response shapes. The tag-building and
// filter-paging idioms below are carried over from the teacher's
// ec2cluster.go (reconcile()'s ec2MaxFilter paging) and instance.go
// (stateTag's ec2.Tag building), adapted from SDK v1 to v2 types.
package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ec2MaxFilter is the maximum number of values permitted in a single EC2
// filter/id list; callers page through larger id sets in chunks of this
// size. Carried over verbatim from the teacher's ec2cluster.go.
const ec2MaxFilter = 200

// EC2Gateway implements Gateway against real AWS EC2. Clients are cached
// per-region since every Gateway method is region-scoped.
type EC2Gateway struct {
	mu      sync.Mutex
	clients map[string]*ec2.Client
	cfg     aws.Config
}

func NewEC2Gateway(ctx context.Context) (*EC2Gateway, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud: load AWS config: %w", err)
	}
	return &EC2Gateway{cfg: cfg, clients: map[string]*ec2.Client{}}, nil
}

func (g *EC2Gateway) client(region string) *ec2.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[region]; ok {
		return c
	}
	c := ec2.NewFromConfig(g.cfg, func(o *ec2.Options) { o.Region = region })
	g.clients[region] = c
	return c
}

func toEC2Tags(tags map[string]string) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

func fromEC2Tags(tags []ec2types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			out[*t.Key] = *t.Value
		}
	}
	return out
}

func toInstance(inst ec2types.Instance) Instance {
	out := Instance{
		InstanceID: aws.ToString(inst.InstanceId),
		State:      InstanceState(inst.State.Name),
		PublicIP:   aws.ToString(inst.PublicIpAddress),
		Tags:       fromEC2Tags(inst.Tags),
	}
	for _, bdm := range inst.BlockDeviceMappings {
		if inst.RootDeviceName != nil && bdm.DeviceName != nil && *bdm.DeviceName == *inst.RootDeviceName && bdm.Ebs != nil {
			out.RootVolumeID = aws.ToString(bdm.Ebs.VolumeId)
		}
	}
	return out
}

// --- Images ---

func (g *EC2Gateway) GetLatestBaseImage(ctx context.Context, region string) (Image, error) {
	out, err := g.client(region).DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []ec2types.Filter{
			{Name: aws.String("architecture"), Values: []string{"x86_64"}},
			{Name: aws.String("virtualization-type"), Values: []string{"hvm"}},
			{Name: aws.String("state"), Values: []string{"available"}},
			{Name: aws.String("root-device-type"), Values: []string{"ebs"}},
		},
	})
	if err != nil {
		return Image{}, Classify("image", "latest", err)
	}
	if len(out.Images) == 0 {
		return Image{}, &NotFound{Resource: "image", ID: "latest-base-image"}
	}
	sort.Slice(out.Images, func(i, j int) bool {
		return aws.ToString(out.Images[i].CreationDate) > aws.ToString(out.Images[j].CreationDate)
	})
	img := out.Images[0]
	return Image{ImageID: aws.ToString(img.ImageId), State: string(img.State)}, nil
}

func (g *EC2Gateway) RegisterImageFromSnapshot(ctx context.Context, region, name, snapshotID string) (Image, error) {
	out, err := g.client(region).RegisterImage(ctx, &ec2.RegisterImageInput{
		Name:               aws.String(name),
		RootDeviceName:     aws.String("/dev/xvda"),
		VirtualizationType: aws.String("hvm"),
		Architecture:       ec2types.ArchitectureValuesX8664,
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{
			{
				DeviceName: aws.String("/dev/xvda"),
				Ebs:        &ec2types.EbsBlockDevice{SnapshotId: aws.String(snapshotID)},
			},
		},
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeImage, Tags: toEC2Tags(map[string]string{TagID: name})},
		},
	})
	if err != nil {
		return Image{}, Classify("image", name, err)
	}
	return Image{ImageID: aws.ToString(out.ImageId), State: "pending"}, nil
}

func (g *EC2Gateway) DeregisterImage(ctx context.Context, region, imageID string) error {
	_, err := g.client(region).DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: aws.String(imageID)})
	return Classify("image", imageID, err)
}

func (g *EC2Gateway) FindImagesUsingSnapshot(ctx context.Context, region, snapshotID string) ([]Image, error) {
	out, err := g.client(region).DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []ec2types.Filter{{Name: aws.String("block-device-mapping.snapshot-id"), Values: []string{snapshotID}}},
	})
	if err != nil {
		return nil, Classify("image", snapshotID, err)
	}
	result := make([]Image, 0, len(out.Images))
	for _, img := range out.Images {
		result = append(result, Image{ImageID: aws.ToString(img.ImageId), State: string(img.State)})
	}
	return result, nil
}

func (g *EC2Gateway) FindToolImages(ctx context.Context, region string) ([]Image, error) {
	out, err := g.client(region).DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []ec2types.Filter{{Name: aws.String("tag-key"), Values: []string{TagID}}},
	})
	if err != nil {
		return nil, Classify("image", "*", err)
	}
	result := make([]Image, 0, len(out.Images))
	for _, img := range out.Images {
		result = append(result, Image{ImageID: aws.ToString(img.ImageId), State: string(img.State)})
	}
	return result, nil
}

// --- Instances ---

func (g *EC2Gateway) RunInstance(ctx context.Context, p RunInstanceParams) (Instance, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(p.UserData))
	out, err := g.client(p.Region).RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:          aws.String(p.AMI),
		InstanceType:     ec2types.InstanceType(p.InstanceType),
		MinCount:         aws.Int32(1),
		MaxCount:         aws.Int32(1),
		KeyName:          aws.String(p.KeyName),
		SecurityGroupIds: []string{p.SecurityGroupID},
		SubnetId:         aws.String(p.SubnetID),
		UserData:         aws.String(encoded),
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{
			{
				DeviceName: aws.String("/dev/xvda"),
				Ebs: &ec2types.EbsBlockDevice{
					VolumeSize:          aws.Int32(p.RootVolumeGB),
					DeleteOnTermination: aws.Bool(true),
					VolumeType:          ec2types.VolumeTypeGp3,
				},
			},
		},
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeInstance, Tags: toEC2Tags(p.Tags)},
		},
	})
	if err != nil {
		return Instance{}, Classify("instance", "", err)
	}
	if len(out.Instances) == 0 {
		return Instance{}, &Transient{Err: fmt.Errorf("RunInstances returned no instances")}
	}
	return toInstance(out.Instances[0]), nil
}

// FindTagged lists every instance tagged gsmc:id (any value), skipping
// terminated/shutting-down instances, per spec.md §4.2 step 1.
func (g *EC2Gateway) FindTagged(ctx context.Context, region string) ([]Instance, error) {
	out, err := g.client(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{Name: aws.String("tag-key"), Values: []string{TagID}}},
	})
	if err != nil {
		return nil, Classify("instance", "*", err)
	}
	var result []Instance
	for _, resv := range out.Reservations {
		for _, inst := range resv.Instances {
			switch inst.State.Name {
			case ec2types.InstanceStateNameTerminated, ec2types.InstanceStateNameShuttingDown:
				continue
			}
			result = append(result, toInstance(inst))
		}
	}
	return result, nil
}

// DescribeInstances pages through ids in chunks of ec2MaxFilter, exactly
// the pattern the teacher's reconcile() uses to stay under EC2's filter
// value limit.
func (g *EC2Gateway) DescribeInstances(ctx context.Context, region string, ids []string) ([]Instance, error) {
	var result []Instance
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > ec2MaxFilter {
			chunk, ids = ids[:ec2MaxFilter], ids[ec2MaxFilter:]
		} else {
			ids = nil
		}
		out, err := g.client(region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: chunk})
		if err != nil {
			return nil, Classify("instance", "", err)
		}
		for _, resv := range out.Reservations {
			for _, inst := range resv.Instances {
				result = append(result, toInstance(inst))
			}
		}
	}
	return result, nil
}

func (g *EC2Gateway) Terminate(ctx context.Context, region, instanceID string) error {
	_, err := g.client(region).TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}})
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) Stop(ctx context.Context, region, instanceID string) error {
	_, err := g.client(region).StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}})
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) Start(ctx context.Context, region, instanceID string) error {
	_, err := g.client(region).StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}})
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) WaitRunning(ctx context.Context, region, instanceID string) error {
	waiter := ec2.NewInstanceRunningWaiter(g.client(region))
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, 10*time.Minute)
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) WaitStopped(ctx context.Context, region, instanceID string) error {
	waiter := ec2.NewInstanceStoppedWaiter(g.client(region))
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}, 10*time.Minute)
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) GetIP(ctx context.Context, region, instanceID string) (string, error) {
	insts, err := g.DescribeInstances(ctx, region, []string{instanceID})
	if err != nil {
		return "", err
	}
	if len(insts) == 0 {
		return "", &NotFound{Resource: "instance", ID: instanceID}
	}
	return insts[0].PublicIP, nil
}

func (g *EC2Gateway) SetTag(ctx context.Context, region, instanceID, key, value string) error {
	_, err := g.client(region).CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      []ec2types.Tag{{Key: aws.String(key), Value: aws.String(value)}},
	})
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) DeleteTag(ctx context.Context, region, instanceID, key string) error {
	_, err := g.client(region).DeleteTags(ctx, &ec2.DeleteTagsInput{
		Resources: []string{instanceID},
		Tags:      []ec2types.Tag{{Key: aws.String(key)}},
	})
	return Classify("instance", instanceID, err)
}

func (g *EC2Gateway) GetRootVolumeID(ctx context.Context, region, instanceID string) (string, error) {
	insts, err := g.DescribeInstances(ctx, region, []string{instanceID})
	if err != nil {
		return "", err
	}
	if len(insts) == 0 {
		return "", &NotFound{Resource: "instance", ID: instanceID}
	}
	if insts[0].RootVolumeID == "" {
		return "", &Transient{Err: fmt.Errorf("instance %s has no discoverable root volume", instanceID)}
	}
	return insts[0].RootVolumeID, nil
}

// --- Security groups ---

// GetOrCreateSecurityGroup ensures "gsmc-<game>-sg" exists in this
// region/vpc, per spec.md §4.1 step 11. Ingress for every port in ports is
// authorized only when the group is created; an existing group is returned
// as is, without checking its rules.
func (g *EC2Gateway) GetOrCreateSecurityGroup(ctx context.Context, region, game string, ports []PortRule, vpcID string) (string, error) {
	name := fmt.Sprintf("%s-%s-sg", TagPrefix, game)
	client := g.client(region)

	desc, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{name}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return "", Classify("security-group", name, err)
	}
	if len(desc.SecurityGroups) > 0 {
		return aws.ToString(desc.SecurityGroups[0].GroupId), nil
	}

	created, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(fmt.Sprintf("gsmc-managed security group for %s", game)),
		VpcId:       aws.String(vpcID),
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeSecurityGroup, Tags: toEC2Tags(map[string]string{TagID: game})},
		},
	})
	if err != nil {
		return "", Classify("security-group", name, err)
	}
	groupID := aws.ToString(created.GroupId)

	var perms []ec2types.IpPermission
	for _, rule := range ports {
		perms = append(perms, ec2types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
			FromPort:   aws.Int32(int32(rule.Port)),
			ToPort:     aws.Int32(int32(rule.Port)),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(rule.CIDR)}},
		})
	}
	if _, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: perms,
	}); err != nil {
		return "", Classify("security-group", groupID, err)
	}
	return groupID, nil
}

// --- Elastic IPs ---

func (g *EC2Gateway) AllocateEIP(ctx context.Context, region, serverID string) (Address, error) {
	out, err := g.client(region).AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain: ec2types.DomainTypeVpc,
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeElasticIp, Tags: toEC2Tags(map[string]string{TagID: serverID})},
		},
	})
	if err != nil {
		return Address{}, Classify("eip", serverID, err)
	}
	return Address{AllocationID: aws.ToString(out.AllocationId), PublicIP: aws.ToString(out.PublicIp)}, nil
}

func (g *EC2Gateway) AssociateEIP(ctx context.Context, region, allocationID, instanceID string) error {
	_, err := g.client(region).AssociateAddress(ctx, &ec2.AssociateAddressInput{
		AllocationId: aws.String(allocationID),
		InstanceId:   aws.String(instanceID),
	})
	return Classify("eip", allocationID, err)
}

// DisassociateEIP is idempotent: if the address has no current
// association, it's a no-op rather than an error (spec.md §4.4).
func (g *EC2Gateway) DisassociateEIP(ctx context.Context, region, allocationID string) error {
	client := g.client(region)
	desc, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{AllocationIds: []string{allocationID}})
	if err != nil {
		return Classify("eip", allocationID, err)
	}
	if len(desc.Addresses) == 0 || aws.ToString(desc.Addresses[0].AssociationId) == "" {
		return nil
	}
	_, err = client.DisassociateAddress(ctx, &ec2.DisassociateAddressInput{
		AssociationId: desc.Addresses[0].AssociationId,
	})
	return Classify("eip", allocationID, err)
}

func (g *EC2Gateway) ReleaseEIP(ctx context.Context, region, allocationID string) error {
	_, err := g.client(region).ReleaseAddress(ctx, &ec2.ReleaseAddressInput{AllocationId: aws.String(allocationID)})
	return Classify("eip", allocationID, err)
}

func (g *EC2Gateway) FindTaggedEIPs(ctx context.Context, region string) ([]Address, error) {
	out, err := g.client(region).DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: []ec2types.Filter{{Name: aws.String("tag-key"), Values: []string{TagID}}},
	})
	if err != nil {
		return nil, Classify("eip", "*", err)
	}
	result := make([]Address, 0, len(out.Addresses))
	for _, a := range out.Addresses {
		result = append(result, Address{
			AllocationID:  aws.ToString(a.AllocationId),
			PublicIP:      aws.ToString(a.PublicIp),
			AssociationID: aws.ToString(a.AssociationId),
			Tags:          fromEC2Tags(a.Tags),
		})
	}
	return result, nil
}

// --- Volumes / snapshots ---

func (g *EC2Gateway) CreateSnapshot(ctx context.Context, region, volumeID, description string, tags map[string]string) (Snapshot, error) {
	out, err := g.client(region).CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
		TagSpecifications: []ec2types.TagSpecification{
			{ResourceType: ec2types.ResourceTypeSnapshot, Tags: toEC2Tags(tags)},
		},
	})
	if err != nil {
		return Snapshot{}, Classify("snapshot", volumeID, err)
	}
	return Snapshot{SnapshotID: aws.ToString(out.SnapshotId), State: string(out.State), VolumeID: volumeID}, nil
}

func (g *EC2Gateway) WaitSnapshotCompleted(ctx context.Context, region, snapshotID string) error {
	waiter := ec2.NewSnapshotCompletedWaiter(g.client(region))
	err := waiter.Wait(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{snapshotID}}, 15*time.Minute)
	return Classify("snapshot", snapshotID, err)
}

func (g *EC2Gateway) DeleteSnapshot(ctx context.Context, region, snapshotID string) error {
	_, err := g.client(region).DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)})
	return Classify("snapshot", snapshotID, err)
}

func (g *EC2Gateway) ListTaggedSnapshots(ctx context.Context, region string) ([]Snapshot, error) {
	out, err := g.client(region).DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  []ec2types.Filter{{Name: aws.String("tag-key"), Values: []string{TagID}}},
	})
	if err != nil {
		return nil, Classify("snapshot", "*", err)
	}
	result := make([]Snapshot, 0, len(out.Snapshots))
	for _, s := range out.Snapshots {
		result = append(result, Snapshot{
			SnapshotID: aws.ToString(s.SnapshotId),
			State:      string(s.State),
			VolumeID:   aws.ToString(s.VolumeId),
			Tags:       fromEC2Tags(s.Tags),
		})
	}
	return result, nil
}

// --- Network ---

func (g *EC2Gateway) DefaultVPCAndSubnet(ctx context.Context, region string) (string, string, error) {
	client := g.client(region)
	vpcs, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{{Name: aws.String("is-default"), Values: []string{"true"}}},
	})
	if err != nil {
		return "", "", Classify("vpc", "default", err)
	}
	if len(vpcs.Vpcs) == 0 {
		return "", "", &NotFound{Resource: "vpc", ID: "default"}
	}
	vpcID := aws.ToString(vpcs.Vpcs[0].VpcId)

	subnets, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return "", "", Classify("subnet", vpcID, err)
	}
	if len(subnets.Subnets) == 0 {
		return "", "", &NotFound{Resource: "subnet", ID: vpcID}
	}
	return vpcID, aws.ToString(subnets.Subnets[0].SubnetId), nil
}

// --- Key pairs ---

func (g *EC2Gateway) ImportKeyPair(ctx context.Context, region, keyName string, publicKeyDER []byte) error {
	_, err := g.client(region).ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(keyName),
		PublicKeyMaterial: publicKeyDER,
	})
	return Classify("keypair", keyName, err)
}

func (g *EC2Gateway) DeleteKeyPair(ctx context.Context, region, keyName string) error {
	_, err := g.client(region).DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: aws.String(keyName)})
	return Classify("keypair", keyName, err)
}

func (g *EC2Gateway) KeyPairFingerprint(ctx context.Context, region, keyName string) (string, error) {
	out, err := g.client(region).DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{keyName}})
	if err != nil {
		return "", Classify("keypair", keyName, err)
	}
	if len(out.KeyPairs) == 0 {
		return "", &NotFound{Resource: "keypair", ID: keyName}
	}
	return aws.ToString(out.KeyPairs[0].KeyFingerprint), nil
}
