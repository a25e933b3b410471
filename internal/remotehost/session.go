// Package remotehost implements the SSH session and container-daemon
// vocabulary spec.md §4.5 calls the remote host driver: a retrying SSH
// connection plus a thin command-builder layer for the container runtime
// running on the other end.
package remotehost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	connectRetries = 12
	connectDelay   = 10 * time.Second
)

// DebugFunc observes every command run over a Session and its exit code,
// per spec.md §4.5's "a debug callback, when present, observes every
// command and its exit code."
type DebugFunc func(cmd string, exitCode int)

// Session is one SSH connection to a game-server host, plus the SFTP
// subsystem used for Upload/Download.
type Session struct {
	client *ssh.Client
	sftp   *sftp.Client
	debug  DebugFunc
}

// Dial opens an SSH session to addr (host:port), retrying transient
// connect failures connectRetries times with connectDelay between
// attempts, per spec.md §4.5.
func Dial(ctx context.Context, addr, user string, signer ssh.Signer, debug DebugFunc) (*Session, error) {
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	var lastErr error
	for attempt := 0; attempt < connectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(connectDelay):
			}
		}
		dialer := net.Dialer{Timeout: config.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		client := ssh.NewClient(sshConn, chans, reqs)
		sftpClient, err := sftp.NewClient(client)
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		return &Session{client: client, sftp: sftpClient, debug: debug}, nil
	}
	return nil, fmt.Errorf("remotehost: connect to %s after %d attempts: %w", addr, connectRetries, lastErr)
}

// Run executes cmd (already fully quoted by the caller) and returns its
// exit code with stdout and stderr merged, per spec.md §4.5.
func (s *Session) Run(cmd string) (int, string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return -1, "", fmt.Errorf("remotehost: new session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	err = session.Run(cmd)
	code := exitCodeOf(err)
	if s.debug != nil {
		s.debug(cmd, code)
	}
	if err != nil {
		if _, ok := err.(*ssh.ExitError); ok {
			return code, out.String(), nil
		}
		return code, out.String(), fmt.Errorf("remotehost: run %q: %w", cmd, err)
	}
	return 0, out.String(), nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}

// RunStreaming executes cmd and returns a channel of output chunks as they
// arrive, for log-follow style commands (spec.md §4.5's
// "run_streaming → lazy finite sequence of output chunks").
func (s *Session) RunStreaming(ctx context.Context, cmd string) (<-chan string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("remotehost: new session: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("remotehost: stdout pipe: %w", err)
	}
	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, fmt.Errorf("remotehost: start %q: %w", cmd, err)
	}
	if s.debug != nil {
		s.debug(cmd, 0)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer session.Close()
		buf := make([]byte, 4096)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := stdout.Read(buf)
			if n > 0 {
				select {
				case out <- string(buf[:n]):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Upload copies local to remote via SFTP.
func (s *Session) Upload(local io.Reader, remotePath string, perm uint32) error {
	f, err := s.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("remotehost: create %s: %w", remotePath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, local); err != nil {
		return fmt.Errorf("remotehost: upload to %s: %w", remotePath, err)
	}
	return f.Chmod(os.FileMode(perm))
}

// Download copies remote to a local writer via SFTP.
func (s *Session) Download(remotePath string, local io.Writer) error {
	f, err := s.sftp.Open(remotePath)
	if err != nil {
		return fmt.Errorf("remotehost: open %s: %w", remotePath, err)
	}
	defer f.Close()
	if _, err := io.Copy(local, f); err != nil {
		return fmt.Errorf("remotehost: download from %s: %w", remotePath, err)
	}
	return nil
}

func (s *Session) Close() error {
	s.sftp.Close()
	return s.client.Close()
}
