package provisioner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/config"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/remotehost"
	"github.com/gsmc-io/gsmc/pkg/idgen"
	"github.com/gsmc-io/gsmc/pkg/portspec"
)

// Upload is one local-file-to-container-path transfer requested for a new
// launch (spec.md §4.1 step 19's "new launch with uploads" branch).
type Upload struct {
	LocalPath     string
	ContainerPath string
}

type LaunchParams struct {
	Game            string
	Region          string
	InstanceType    string
	Name            string
	ConfigOverrides map[string]string
	ConfigFile      string
	Uploads         []Upload
	FromSnapshot    string
	PinIP           bool
}

const (
	daemonWaitRetries  = 30
	daemonWaitDelay    = 5 * time.Second
	sgSSHPort          = 22
)

// Launch implements spec.md §4.1's launch operation in full: the
// precondition checks (steps 1-7), the cloud+remote-host bootstrap
// (steps 8-21), and the cleanup contract on any failure after step 15.
func (p *Provisioner) Launch(ctx context.Context, params LaunchParams) (model.Server, error) {
	defer p.lock()()

	if params.Region == "" && params.FromSnapshot != "" {
		if snap, found, err := p.store.GetSnapshot(params.FromSnapshot); err == nil && found {
			params.Region = snap.Region
		}
	}
	if params.Region == "" && p.cfg != nil {
		params.Region = p.cfg.DefaultRegion
	}

	// Step 1: best-effort reconcile.
	if p.reconciler != nil {
		p.reconciler.AutoReconcile(ctx, []string{params.Region})
	}

	game, ok := p.registry.Get(params.Game)
	if !ok {
		return model.Server{}, cloud.NewConfigError("unknown game %q", params.Game)
	}

	// Step 2: allocate id, derive default name.
	id, err := idgen.ShortID()
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: allocate server id: %w", err)
	}
	name := params.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", params.Game, id[:6])
	}

	// Step 3: reject duplicate local name.
	if exists, err := p.store.ServerNameExists(name); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: check name uniqueness: %w", err)
	} else if exists {
		return model.Server{}, cloud.NewConfigError("server name %q already exists", name)
	}

	// Step 4: best-effort check for a same-named cloud VM in any known region.
	if p.cloudNameCollision(ctx, name, params.Region) {
		return model.Server{}, cloud.NewConfigError("a cloud instance named %q already exists", name)
	}

	// Step 5: restore exclusivity.
	isRestore := params.FromSnapshot != ""
	if isRestore && (len(params.ConfigOverrides) > 0 || params.ConfigFile != "" || len(params.Uploads) > 0) {
		return model.Server{}, cloud.NewConfigError("from_snapshot cannot be combined with config overrides, a config file, or uploads")
	}

	// Step 6: merge config, generate secrets.
	mergedConfig := game.MergeDefaults()
	if params.ConfigFile != "" {
		fileConfig, err := parseConfigFile(params.ConfigFile)
		if err != nil {
			return model.Server{}, fmt.Errorf("provisioner: read config file: %w", err)
		}
		for k, v := range fileConfig {
			mergedConfig[k] = v
		}
	}
	for k, v := range params.ConfigOverrides {
		mergedConfig[k] = v
	}
	for _, key := range game.PasswordKeys {
		if _, ok := mergedConfig[key]; !ok {
			secret, err := idgen.GenerateSecret()
			if err != nil {
				return model.Server{}, fmt.Errorf("provisioner: generate secret for %s: %w", key, err)
			}
			mergedConfig[key] = secret
		}
	}
	rconPassword := ""
	if game.RCONPasswordKey != "" {
		if v, ok := mergedConfig[game.RCONPasswordKey]; ok {
			rconPassword = v
		} else {
			secret, err := idgen.GenerateSecret()
			if err != nil {
				return model.Server{}, fmt.Errorf("provisioner: generate rcon password: %w", err)
			}
			mergedConfig[game.RCONPasswordKey] = secret
			rconPassword = secret
		}
	}

	// Step 7: required config.
	if !isRestore && len(game.RequiredConfig) > 0 {
		var missing []string
		for _, key := range game.RequiredConfig {
			if v, ok := mergedConfig[key]; !ok || v == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return model.Server{}, cloud.NewConfigError(
				"missing required config keys %s; supply them with --config or a config file",
				strings.Join(missing, ", "),
			)
		}
	}

	region := params.Region
	instanceType := params.InstanceType
	if instanceType == "" {
		instanceType = game.DefaultInstanceType
	}

	server := model.Server{
		ID:     id,
		Name:   name,
		Game:   params.Game,
		Region: region,
		Config: mergedConfig,
	}
	if rconPassword != "" {
		server.RCONPassword = rconPassword
	}

	result, err := p.launchCloudAndHost(ctx, &server, instanceType, params, isRestore)
	if err != nil {
		return model.Server{}, err
	}
	return result, nil
}

func (p *Provisioner) cloudNameCollision(ctx context.Context, name, region string) bool {
	candidates := []string{region}
	if servers, err := p.store.ListServers(); err == nil {
		for _, s := range servers {
			candidates = append(candidates, s.Region)
		}
	}
	if p.keys != nil {
		if active, err := p.keys.ActiveRegions(ctx); err == nil {
			candidates = append(candidates, active...)
		}
	}
	seen := map[string]bool{}
	for _, r := range candidates {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		instances, err := p.gateway.FindTagged(ctx, r)
		if err != nil {
			continue
		}
		for _, inst := range instances {
			if inst.Tags[cloud.TagName] == name {
				return true
			}
		}
	}
	return false
}

// launchCloudAndHost runs steps 8-22, honoring the launch cleanup contract:
// any error after the record is first persisted (step 15) triggers
// best-effort SSH close, temp-image deregistration, and instance
// termination, deleting the record only if termination itself succeeds.
func (p *Provisioner) launchCloudAndHost(
	ctx context.Context,
	server *model.Server,
	instanceType string,
	params LaunchParams,
	isRestore bool,
) (model.Server, error) {
	g, ok := p.registry.Get(params.Game)
	if !ok {
		return model.Server{}, cloud.NewConfigError("unknown game %q", params.Game)
	}

	p.emit("resolve-network", "resolving default VPC and subnet")
	vpcID, subnetID, err := p.gateway.DefaultVPCAndSubnet(ctx, server.Region)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: resolve network: %w", err)
	}

	p.emit("shared-key", "ensuring shared SSH key pair")
	priv, err := p.keys.EnsureKey(ctx)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: ensure shared key: %w", err)
	}
	keyName := "gsmc-cluster-key"
	if err := p.keys.EnsureCloudKeyPair(ctx, server.Region, keyName, priv); err != nil {
		return model.Server{}, fmt.Errorf("provisioner: ensure cloud key pair: %w", err)
	}

	p.emit("resolve-image", "resolving base image")
	var tempImageID string
	var amiID string
	if isRestore {
		snap, found, err := p.store.GetSnapshot(params.FromSnapshot)
		if err != nil {
			return model.Server{}, fmt.Errorf("provisioner: read snapshot record: %w", err)
		}
		if !found {
			return model.Server{}, cloud.NewConfigError("snapshot %q not found", params.FromSnapshot)
		}
		img, err := p.gateway.RegisterImageFromSnapshot(ctx, server.Region, "gsmc-restore-"+snap.ID, snap.SnapshotID)
		if err != nil {
			return model.Server{}, fmt.Errorf("provisioner: register restore image: %w", err)
		}
		amiID = img.ImageID
		tempImageID = img.ImageID
		server.Config = snap.Config
		server.RCONPassword = snap.RCONPassword
	} else {
		img, err := p.gateway.GetLatestBaseImage(ctx, server.Region)
		if err != nil {
			return model.Server{}, fmt.Errorf("provisioner: resolve base image: %w", err)
		}
		amiID = img.ImageID
	}

	p.emit("security-group", "ensuring security group")
	portRules := []cloud.PortRule{{Port: sgSSHPort, Protocol: "tcp", CIDR: p.cfg.SSHCIDR}}
	for _, gp := range g.Ports {
		portRules = append(portRules, cloud.PortRule{Port: int(gp.Port), Protocol: string(gp.Protocol), CIDR: "0.0.0.0/0"})
	}
	sgID, err := p.gateway.GetOrCreateSecurityGroup(ctx, server.Region, params.Game, portRules, vpcID)
	if err != nil {
		return model.Server{}, fmt.Errorf("provisioner: ensure security group: %w", err)
	}
	server.SecurityGroupID = sgID

	server.ContainerName = fmt.Sprintf("gsmc-%s-%s", params.Game, server.ID[:8])
	portsSet := portspec.FromGamePorts(g.Ports)
	portsTag := portsSet.Serialize()
	server.Ports = map[string]int{}
	for k, spec := range portsSet {
		server.Ports[k] = int(spec.Port)
	}
	server.LaunchTime = time.Now().UTC()

	p.emit("run-instance", "launching cloud instance")
	tags := instanceTags(*server, portsTag, p.cfg.RCONSyncMode)
	if server.RCONPassword != "" && p.cfg.RCONSyncMode == config.RCONSyncParameterStore {
		if err := p.keys.PutRCONPassword(ctx, server.ID, server.RCONPassword); err != nil {
			p.log.Sugar().Warnw("provisioner: sync rcon password to parameter store", "id", server.ID, "err", err)
		}
	}
	inst, err := p.gateway.RunInstance(ctx, cloud.RunInstanceParams{
		Region:          server.Region,
		AMI:             amiID,
		InstanceType:    instanceType,
		KeyName:         keyName,
		SecurityGroupID: sgID,
		SubnetID:        subnetID,
		UserData:        bootstrapUserData(),
		RootVolumeGB:    int32(g.DiskGB),
		Tags:            tags,
	})
	if err != nil {
		if tempImageID != "" {
			_ = p.gateway.DeregisterImage(ctx, server.Region, tempImageID)
		}
		return model.Server{}, fmt.Errorf("provisioner: run instance: %w", err)
	}
	server.InstanceID = inst.InstanceID
	server.PublicIP = inst.PublicIP

	// Step 14: record the region in the active-regions set.
	if err := p.keys.AddActiveRegion(ctx, server.Region); err != nil {
		p.log.Sugar().Warnw("provisioner: add active region", "region", server.Region, "err", err)
	}

	// Step 15: orphan-prevention persist.
	server.Status = model.StatusLaunching
	if err := p.store.SaveServer(*server); err != nil {
		if tempImageID != "" {
			_ = p.gateway.DeregisterImage(ctx, server.Region, tempImageID)
		}
		_ = p.gateway.Terminate(ctx, server.Region, server.InstanceID)
		return model.Server{}, fmt.Errorf("provisioner: persist launching record: %w", err)
	}

	finalServer, launchErr := p.bootstrapHost(ctx, server, g, params, isRestore, tempImageID)
	if launchErr != nil {
		return model.Server{}, p.cleanupFailedLaunch(ctx, server, tempImageID, launchErr)
	}

	if params.PinIP {
		p.emit("pin-ip", "allocating elastic IP")
		if err := p.pinIP(ctx, &finalServer); err != nil {
			return model.Server{}, p.cleanupFailedLaunch(ctx, server, tempImageID, err)
		}
	}

	if tempImageID != "" {
		_ = p.gateway.DeregisterImage(ctx, server.Region, tempImageID)
	}

	return finalServer, nil
}

// cleanupFailedLaunch implements the launch cleanup contract: terminate
// the instance; delete the record only if termination succeeded, else
// preserve it (still status=launching) so the operator can find it.
func (p *Provisioner) cleanupFailedLaunch(ctx context.Context, server *model.Server, tempImageID string, launchErr error) error {
	if tempImageID != "" {
		_ = p.gateway.DeregisterImage(ctx, server.Region, tempImageID)
	}
	if err := p.gateway.Terminate(ctx, server.Region, server.InstanceID); err != nil {
		p.log.Sugar().Errorw("provisioner: launch cleanup: terminate failed, preserving record",
			"id", server.ID, "err", err)
		return launchErr
	}
	if err := p.store.DeleteServer(server.ID); err != nil {
		p.log.Sugar().Warnw("provisioner: launch cleanup: delete record", "id", server.ID, "err", err)
	}
	return launchErr
}

func (p *Provisioner) bootstrapHost(
	ctx context.Context,
	server *model.Server,
	g model.Game,
	params LaunchParams,
	isRestore bool,
	tempImageID string,
) (model.Server, error) {
	p.emit("wait-running", "waiting for instance to reach running")
	if err := p.gateway.WaitRunning(ctx, server.Region, server.InstanceID); err != nil {
		return model.Server{}, fmt.Errorf("wait for running: %w", err)
	}
	ip, err := p.gateway.GetIP(ctx, server.Region, server.InstanceID)
	if err != nil {
		return model.Server{}, fmt.Errorf("fetch instance ip: %w", err)
	}
	server.PublicIP = ip

	p.emit("ssh-connect", "opening SSH session")
	session, err := p.dialer.Dial(ctx, ip+":"+sshPort, sshUser)
	if err != nil {
		return model.Server{}, fmt.Errorf("ssh connect: %w", err)
	}
	defer session.Close()

	daemon := remotehost.NewContainerDaemon(session)
	p.emit("wait-daemon", "waiting for container daemon")
	if err := daemon.WaitReady(daemonWaitRetries, daemonWaitDelay); err != nil {
		return model.Server{}, fmt.Errorf("wait for container daemon: %w", err)
	}

	if isRestore {
		if err := p.bootstrapRestore(ctx, server, daemon, session); err != nil {
			return model.Server{}, err
		}
	} else if len(params.Uploads) > 0 || g.IsCatalogFamily() {
		if err := p.bootstrapWithUploads(ctx, server, g, params, daemon, session); err != nil {
			return model.Server{}, err
		}
	} else {
		if err := p.bootstrapPlain(server, g, daemon); err != nil {
			return model.Server{}, err
		}
	}

	// Step 20: final persist + host metadata anchor.
	server.Status = model.StatusRunning
	if err := p.store.SaveServer(*server); err != nil {
		return model.Server{}, fmt.Errorf("persist running record: %w", err)
	}
	if err := writeHostMetadata(session, server.Config, server.RCONPassword); err != nil {
		p.log.Sugar().Warnw("provisioner: write host metadata anchor", "id", server.ID, "err", err)
	}

	return *server, nil
}

func (p *Provisioner) bootstrapRestore(ctx context.Context, server *model.Server, daemon *remotehost.ContainerDaemon, session *remotehost.Session) error {
	p.emit("restore-container", "discovering restored container")
	found, err := daemon.FindToolContainer()
	if err != nil {
		return &cloud.IntegrityError{Msg: "provisioner: restore: no tool-managed container found on restored volume"}
	}
	server.ContainerName = found
	if err := p.gateway.SetTag(ctx, server.Region, server.InstanceID, cloud.TagContainerName, found); err != nil {
		p.log.Sugar().Warnw("provisioner: tag restored container name", "id", server.ID, "err", err)
	}
	if err := daemon.Start(found); err != nil {
		return fmt.Errorf("start restored container: %w", err)
	}
	if server.Config == nil || len(server.Config) == 0 {
		md, err := readHostMetadata(session)
		if err == nil {
			server.Config = md.Config
			server.RCONPassword = md.RCONPassword
		}
	}
	return nil
}

func (p *Provisioner) bootstrapPlain(server *model.Server, g model.Game, daemon *remotehost.ContainerDaemon) error {
	p.emit("pull-image", "pulling container image")
	if err := daemon.Pull(g.Image); err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	p.emit("run-container", "starting container")
	ports := map[int]int{}
	for _, spec := range g.Ports {
		ports[int(spec.Port)] = int(spec.Port)
	}
	volumes := map[string]string{}
	for _, v := range g.Volumes {
		volumes["/opt/gsmc/data"+v] = v
	}
	if err := daemon.RunDetached(server.ContainerName, g.Image, server.Config, ports, volumes, g.ExtraArgs); err != nil {
		return fmt.Errorf("run container: %w", err)
	}
	return nil
}

func (p *Provisioner) bootstrapWithUploads(
	ctx context.Context,
	server *model.Server,
	g model.Game,
	params LaunchParams,
	daemon *remotehost.ContainerDaemon,
	session *remotehost.Session,
) error {
	p.emit("create-container", "creating container")
	ports := map[int]int{}
	for _, spec := range g.Ports {
		ports[int(spec.Port)] = int(spec.Port)
	}
	volumes := map[string]string{}
	for _, v := range g.Volumes {
		volumes["/opt/gsmc/data"+v] = v
	}
	env := server.Config
	if g.IsCatalogFamily() {
		env = nil
	}
	if err := daemon.Create(server.ContainerName, g.Image, env, ports, volumes, g.ExtraArgs); err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	for i, upload := range params.Uploads {
		p.emit("upload", fmt.Sprintf("uploading %s", path.Base(upload.LocalPath)))
		remoteTemp := fmt.Sprintf("/tmp/gsmc-upload-%d-%d", time.Now().UnixNano(), i)
		f, err := os.Open(upload.LocalPath)
		if err != nil {
			return fmt.Errorf("open upload %s: %w", upload.LocalPath, err)
		}
		uploadErr := session.Upload(f, remoteTemp, 0o600)
		f.Close()
		if uploadErr != nil {
			return fmt.Errorf("upload %s: %w", upload.LocalPath, uploadErr)
		}
		if err := daemon.CpTo(server.ContainerName, remoteTemp, upload.ContainerPath); err != nil {
			return fmt.Errorf("copy upload into container: %w", err)
		}
	}

	if g.IsCatalogFamily() {
		p.emit("catalog-config", "materializing catalog-family config file")
		configDir := path.Join(g.DataPaths["config"], g.CatalogCode)
		if err := daemon.EnsureDir(server.ContainerName, configDir); err != nil {
			return fmt.Errorf("ensure config dir: %w", err)
		}
		content := serializeCatalogConfig(server.Config)
		remoteTemp := fmt.Sprintf("/tmp/gsmc-common-%d.cfg", time.Now().UnixNano())
		if err := session.Upload(strings.NewReader(content), remoteTemp, 0o600); err != nil {
			return fmt.Errorf("upload catalog config: %w", err)
		}
		if err := daemon.CpTo(server.ContainerName, remoteTemp, path.Join(configDir, "common.cfg")); err != nil {
			return fmt.Errorf("copy catalog config into container: %w", err)
		}
	}

	p.emit("start-container", "starting container")
	if err := daemon.Start(server.ContainerName); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

// serializeCatalogConfig writes one key="value" assignment per line, the
// format spec.md §4.1's "Catalog-family config" section specifies.
func serializeCatalogConfig(cfg map[string]string) string {
	var b strings.Builder
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%q\n", k, cfg[k])
	}
	return b.String()
}

func parseConfigFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.Trim(strings.TrimSpace(parts[1]), `"`)
	}
	return out, scanner.Err()
}

// bootstrapUserData is the cloud-init shell script installed on the base
// image: it ensures the container daemon is running and adds the SSH
// login user to its group, per spec.md §4.1 step 13.
func bootstrapUserData() string {
	return `#!/bin/bash
set -e
if ! command -v docker >/dev/null 2>&1; then
  curl -fsSL https://get.docker.com | sh
fi
systemctl enable --now docker
usermod -aG docker ` + sshUser + `
`
}
