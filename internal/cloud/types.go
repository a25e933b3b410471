package cloud

import "context"

// InstanceState is the subset of EC2 instance lifecycle states the core
// cares about (spec.md §4.2's status mapping).
type InstanceState string

const (
	InstancePending      InstanceState = "pending"
	InstanceRunning      InstanceState = "running"
	InstanceStopping     InstanceState = "stopping"
	InstanceStopped      InstanceState = "stopped"
	InstanceShuttingDown InstanceState = "shutting-down"
	InstanceTerminated   InstanceState = "terminated"
)

// Instance is the thin, typed view of an EC2 instance the rest of the core
// works with; it carries exactly the fields the Provisioner and Reconciler
// need, decoded from the SDK's tags/fields at the gateway boundary.
type Instance struct {
	InstanceID string
	State      InstanceState
	PublicIP   string
	Tags       map[string]string
	RootVolumeID string
}

// Address is an Elastic IP.
type Address struct {
	AllocationID  string
	PublicIP      string
	AssociationID string // empty when unassociated
	Tags          map[string]string
}

// Snapshot is a provider-side EBS snapshot.
type Snapshot struct {
	SnapshotID string
	State      string // "pending" | "completed" | "error"
	VolumeID   string
	Tags       map[string]string
}

// Image is an AMI.
type Image struct {
	ImageID string
	State   string
}

// PortRule is one security-group ingress rule to ensure exists.
type PortRule struct {
	Port     int
	Protocol string // "tcp" | "udp"
	CIDR     string
}

// RunInstanceParams is everything the gateway needs to launch one instance.
type RunInstanceParams struct {
	Region          string
	AMI             string
	InstanceType    string
	KeyName         string
	SecurityGroupID string
	SubnetID        string
	UserData        string // raw; the gateway base64-encodes it
	RootVolumeGB    int32
	Tags            map[string]string
}

// Gateway is the cloud-resource gateway: typed, thin wrappers over the IaaS
// API, per spec.md §4.4. Every method takes a context and a region.
type Gateway interface {
	// Images
	GetLatestBaseImage(ctx context.Context, region string) (Image, error)
	RegisterImageFromSnapshot(ctx context.Context, region, name, snapshotID string) (Image, error)
	DeregisterImage(ctx context.Context, region, imageID string) error
	FindImagesUsingSnapshot(ctx context.Context, region, snapshotID string) ([]Image, error)
	FindToolImages(ctx context.Context, region string) ([]Image, error)

	// Instances
	RunInstance(ctx context.Context, p RunInstanceParams) (Instance, error)
	FindTagged(ctx context.Context, region string) ([]Instance, error)
	DescribeInstances(ctx context.Context, region string, ids []string) ([]Instance, error)
	Terminate(ctx context.Context, region, instanceID string) error
	Stop(ctx context.Context, region, instanceID string) error
	Start(ctx context.Context, region, instanceID string) error
	WaitRunning(ctx context.Context, region, instanceID string) error
	WaitStopped(ctx context.Context, region, instanceID string) error
	GetIP(ctx context.Context, region, instanceID string) (string, error)
	SetTag(ctx context.Context, region, instanceID, key, value string) error
	DeleteTag(ctx context.Context, region, instanceID, key string) error
	GetRootVolumeID(ctx context.Context, region, instanceID string) (string, error)

	// Security groups
	GetOrCreateSecurityGroup(ctx context.Context, region, game string, ports []PortRule, vpcID string) (string, error)

	// Elastic IPs
	AllocateEIP(ctx context.Context, region, serverID string) (Address, error)
	AssociateEIP(ctx context.Context, region, allocationID, instanceID string) error
	DisassociateEIP(ctx context.Context, region, allocationID string) error
	ReleaseEIP(ctx context.Context, region, allocationID string) error
	FindTaggedEIPs(ctx context.Context, region string) ([]Address, error)

	// Volumes / snapshots
	CreateSnapshot(ctx context.Context, region, volumeID, description string, tags map[string]string) (Snapshot, error)
	WaitSnapshotCompleted(ctx context.Context, region, snapshotID string) error
	DeleteSnapshot(ctx context.Context, region, snapshotID string) error
	ListTaggedSnapshots(ctx context.Context, region string) ([]Snapshot, error)

	// Network
	DefaultVPCAndSubnet(ctx context.Context, region string) (vpcID, subnetID string, err error)

	// Key pairs (spec.md §4.6's "ensure the cloud key-pair object")
	ImportKeyPair(ctx context.Context, region, keyName string, publicKeyDER []byte) error
	DeleteKeyPair(ctx context.Context, region, keyName string) error
	KeyPairFingerprint(ctx context.Context, region, keyName string) (string, error)
}
