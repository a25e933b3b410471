package remotehost

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/blang/semver"
	shellquote "github.com/kballard/go-shellquote"
)

// MinDaemonVersion is the lowest container-daemon API version wait_ready
// will accept. Supplemented from original_source/src/gsm/control/docker.py's
// version-floor check, which this driver re-implements with a typed
// semver comparison instead of a string compare.
var MinDaemonVersion = semver.MustParse("1.41.0")

// ContainerDaemon is the container-runtime command vocabulary from spec.md
// §4.5, built as thin `docker <verb>` command strings run over a Session.
type ContainerDaemon struct {
	session *Session
}

func NewContainerDaemon(session *Session) *ContainerDaemon {
	return &ContainerDaemon{session: session}
}

func quoteAll(args ...string) string {
	return shellquote.Join(args...)
}

// WaitReady polls `docker version` until the daemon answers or retries are
// exhausted, then enforces MinDaemonVersion.
func (d *ContainerDaemon) WaitReady(retries int, delay time.Duration) error {
	var lastOut string
	for attempt := 0; attempt < retries; attempt++ {
		code, out, err := d.session.Run("docker version --format '{{.Server.APIVersion}}'")
		if err == nil && code == 0 {
			lastOut = strings.TrimSpace(out)
			break
		}
		if attempt < retries-1 {
			time.Sleep(delay)
		}
	}
	if lastOut == "" {
		return fmt.Errorf("remotehost: container daemon not ready after %d attempts", retries)
	}
	got, err := semver.Parse(normalizeVersion(lastOut))
	if err != nil {
		return fmt.Errorf("remotehost: parse daemon API version %q: %w", lastOut, err)
	}
	if got.LT(MinDaemonVersion) {
		return fmt.Errorf("remotehost: container daemon API version %s below required %s", got, MinDaemonVersion)
	}
	return nil
}

func normalizeVersion(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}

func (d *ContainerDaemon) run(args ...string) (string, error) {
	cmd := quoteAll(args...)
	code, out, err := d.session.Run(cmd)
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, fmt.Errorf("remotehost: %s exited %d: %s", strings.Join(args[:2], " "), code, out)
	}
	return out, nil
}

func (d *ContainerDaemon) Pull(image string) error {
	_, err := d.run("docker", "pull", image)
	return err
}

func (d *ContainerDaemon) Create(name, image string, env map[string]string, ports map[int]int, volumes map[string]string, extraArgs []string) error {
	args := []string{"docker", "create", "--name", name}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for hostPort, containerPort := range ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, containerPort))
	}
	for hostPath, containerPath := range volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s", hostPath, containerPath))
	}
	args = append(args, extraArgs...)
	args = append(args, image)
	_, err := d.run(args...)
	return err
}

func (d *ContainerDaemon) RunDetached(name, image string, env map[string]string, ports map[int]int, volumes map[string]string, extraArgs []string) error {
	args := []string{"docker", "run", "-d", "--name", name}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for hostPort, containerPort := range ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, containerPort))
	}
	for hostPath, containerPath := range volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s", hostPath, containerPath))
	}
	args = append(args, extraArgs...)
	args = append(args, image)
	_, err := d.run(args...)
	return err
}

func (d *ContainerDaemon) Start(name string) error {
	_, err := d.run("docker", "start", name)
	return err
}

func (d *ContainerDaemon) Stop(name string) error {
	_, err := d.run("docker", "stop", name)
	return err
}

func (d *ContainerDaemon) Rm(name string) error {
	_, err := d.run("docker", "rm", "-f", name)
	return err
}

func (d *ContainerDaemon) CpTo(name, localArchivePath, containerPath string) error {
	_, err := d.run("docker", "cp", localArchivePath, name+":"+containerPath)
	return err
}

func (d *ContainerDaemon) CpFrom(name, containerPath, localPath string) error {
	_, err := d.run("docker", "cp", name+":"+containerPath, localPath)
	return err
}

// EnsureDir materializes a possibly-missing directory tree inside name,
// even if name is stopped, by streaming a synthesized empty tar archive
// into `docker cp`, per spec.md §4.5.
func (d *ContainerDaemon) EnsureDir(name, dirPath string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	clean := path.Clean(dirPath)
	if clean == "." || clean == "/" {
		return fmt.Errorf("remotehost: refusing to ensure root directory in %s", name)
	}
	hdr := &tar.Header{
		Name:     strings.TrimPrefix(clean, "/") + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("remotehost: build tar header: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("remotehost: close tar stream: %w", err)
	}

	remoteTemp := fmt.Sprintf("/tmp/gsmc-ensuredir-%d.tar", time.Now().UnixNano())
	if err := d.session.Upload(&buf, remoteTemp, 0o600); err != nil {
		return err
	}
	defer d.run("rm", "-f", remoteTemp)

	// `docker cp -` extracts a tar stream from stdin; the header path is
	// relative to the container root.
	code, out, err := d.session.Run(quoteAll("docker", "cp", "-", name+":/") + " < " + quoteAll(remoteTemp))
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("remotehost: docker cp exited %d: %s", code, out)
	}
	return nil
}

func (d *ContainerDaemon) IsRunning(name string) (bool, error) {
	out, err := d.run("docker", "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		return false, err
	}
	running, parseErr := strconv.ParseBool(strings.TrimSpace(out))
	if parseErr != nil {
		return false, nil
	}
	return running, nil
}

func (d *ContainerDaemon) Exec(name string, cmd ...string) (string, error) {
	args := append([]string{"docker", "exec", name}, cmd...)
	return d.run(args...)
}

func (d *ContainerDaemon) Logs(name string, tail int) (string, error) {
	args := []string{"docker", "logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, name)
	return d.run(args...)
}

func (d *ContainerDaemon) LogsFollow(ctx context.Context, name string, tail int) (<-chan string, error) {
	args := []string{"docker", "logs", "-f"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	args = append(args, name)
	return d.session.RunStreaming(ctx, quoteAll(args...))
}

func (d *ContainerDaemon) ContainerExists(name string) (bool, error) {
	_, err := d.run("docker", "inspect", name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// FindToolContainer returns the first "gsmc-*" container on the host,
// running or stopped, per spec.md §4.5's resolve_container fallback.
func (d *ContainerDaemon) FindToolContainer() (string, error) {
	out, err := d.run("docker", "ps", "-a", "--filter", "name=gsmc-", "--format", "{{.Names}}")
	if err != nil {
		return "", err
	}
	lines := strings.Fields(out)
	if len(lines) == 0 {
		return "", fmt.Errorf("remotehost: no gsmc-managed container found on host")
	}
	return lines[0], nil
}
