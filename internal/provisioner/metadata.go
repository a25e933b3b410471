package provisioner

import (
	"bytes"
	"encoding/json"
	"fmt"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/gsmc-io/gsmc/internal/remotehost"
)

const metadataPath = "/opt/gsmc/metadata.json"

type hostMetadata struct {
	Config       map[string]string `json:"config"`
	RCONPassword string            `json:"rcon_password"`
}

// writeHostMetadata writes /opt/gsmc/metadata.json inside the VM itself
// (not the container) — the recovery anchor legacy snapshot restores fall
// back to when the snapshot record predates capturing config (spec.md
// §4.1 step 20).
func writeHostMetadata(session *remotehost.Session, config map[string]string, rconPassword string) error {
	payload, err := json.Marshal(hostMetadata{Config: config, RCONPassword: rconPassword})
	if err != nil {
		return fmt.Errorf("provisioner: marshal host metadata: %w", err)
	}
	mkdir := shellquote.Join("mkdir", "-p", "/opt/gsmc")
	if code, out, err := session.Run(mkdir); err != nil || code != 0 {
		return fmt.Errorf("provisioner: create /opt/gsmc: %v (exit %d: %s)", err, code, out)
	}
	return session.Upload(bytes.NewReader(payload), metadataPath, 0o600)
}

// readHostMetadata reads the legacy recovery anchor back, used when a
// snapshot record has no captured config/rcon_password (spec.md §4.1
// step 19's restore branch).
func readHostMetadata(session *remotehost.Session) (hostMetadata, error) {
	var buf bytes.Buffer
	if err := session.Download(metadataPath, &buf); err != nil {
		return hostMetadata{}, fmt.Errorf("provisioner: download host metadata: %w", err)
	}
	var md hostMetadata
	if err := json.Unmarshal(buf.Bytes(), &md); err != nil {
		return hostMetadata{}, fmt.Errorf("provisioner: parse host metadata: %w", err)
	}
	return md, nil
}
