package provisioner

import (
	"time"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/config"
	"github.com/gsmc-io/gsmc/internal/model"
)

// instanceTags builds the full tag bundle run_instance needs for
// cross-machine discovery (spec.md §4.1 step 13, §6 tag vocabulary). The
// RCON password only goes on the tag when syncMode is RCONSyncTag
// (spec.md §9, O-2); under RCONSyncParameterStore it is synced to the
// cluster parameter store instead, by the caller.
func instanceTags(s model.Server, portsTag string, syncMode config.RCONSyncMode) map[string]string {
	tags := map[string]string{
		cloud.TagID:            s.ID,
		cloud.TagGame:          s.Game,
		cloud.TagName:          s.Name,
		cloud.TagSecurityGroupID: s.SecurityGroupID,
		cloud.TagPorts:         portsTag,
		cloud.TagContainerName: s.ContainerName,
		cloud.TagLaunchTime:    s.LaunchTime.Format(time.RFC3339),
	}
	if s.RCONPassword != "" && syncMode != config.RCONSyncParameterStore {
		tags[cloud.TagRCONPassword] = s.RCONPassword
	}
	return tags
}

func snapshotTags(s model.Server, snapshotID string) map[string]string {
	return map[string]string{
		cloud.TagID:         s.ID,
		cloud.TagGame:       s.Game,
		cloud.TagName:       s.Name,
		cloud.TagSnapshotID: snapshotID,
	}
}
