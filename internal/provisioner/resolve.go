package provisioner

import (
	"context"
	"fmt"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/remotehost"
)

// resolveContainer implements spec.md §4.5's resolve_container: if the
// record's container_name exists on the host, use it. Otherwise look for
// any gsmc-managed container and adopt its name into both local state and
// the container-name cloud tag so peers see the rename.
func (p *Provisioner) resolveContainer(ctx context.Context, s *model.Server, daemon *remotehost.ContainerDaemon) (string, error) {
	if s.ContainerName != "" {
		if exists, err := daemon.ContainerExists(s.ContainerName); err == nil && exists {
			return s.ContainerName, nil
		}
	}

	found, err := daemon.FindToolContainer()
	if err != nil {
		return "", &cloud.RemoteFailure{Step: "resolve_container", Err: fmt.Errorf("no gsmc-managed container found for server %s", s.ID)}
	}

	s.ContainerName = found
	if err := p.store.UpdateServerField(s.ID, func(rec *model.Server) { rec.ContainerName = found }); err != nil {
		p.log.Sugar().Warnw("resolve_container: persist renamed container", "id", s.ID, "err", err)
	}
	if err := p.gateway.SetTag(ctx, s.Region, s.InstanceID, cloud.TagContainerName, found); err != nil {
		p.log.Sugar().Warnw("resolve_container: tag renamed container", "id", s.ID, "err", err)
	}
	return found, nil
}
