package cloud

// TagPrefix namespaces every tag this tool writes (spec.md §6). All keys
// below are "<TagPrefix>:<name>".
const TagPrefix = "gsmc"

const (
	TagID              = TagPrefix + ":id"
	TagGame            = TagPrefix + ":game"
	TagName            = TagPrefix + ":name"
	TagSecurityGroupID = TagPrefix + ":sg-id"
	TagPorts           = TagPrefix + ":ports"
	TagRCONPassword    = TagPrefix + ":rcon-password"
	TagContainerName   = TagPrefix + ":container-name"
	TagLaunchTime      = TagPrefix + ":launch-time"
	TagEIPAllocID      = TagPrefix + ":eip-alloc-id"
	TagContainerStopped = TagPrefix + ":container-stopped"
	TagSnapshotID      = TagPrefix + ":snapshot-id"
)

// ParamPrefix namespaces the cluster-shared parameter store keys (spec.md
// §4.6, §6).
const ParamPrefix = TagPrefix

const (
	ParamSSHPrivateKey = ParamPrefix + "/ssh-private-key"
	ParamActiveRegions = ParamPrefix + "/active-regions"
)

// ParamRCONPassword is the cluster parameter store path for a server's
// RCON password under config.RCONSyncParameterStore mode — the
// alternative to tagging the instance directly (spec.md §9, O-2).
func ParamRCONPassword(serverID string) string {
	return ParamPrefix + "/server/" + serverID + "/rcon-password"
}
