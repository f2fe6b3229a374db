// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"golang.org/x/crypto/ssh"
)

// Session is a live, authenticated connection to one host. File paths are
// relative to the login user's home directory.
type Session interface {
	// Run executes cmd and returns its standard output. A non-zero exit is
	// reported as *ExecutionError; the output read so far is still returned.
	Run(ctx context.Context, cmd string) (string, error)
	// ReadFile returns the file content, or an error matching fs.ErrNotExist.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// WriteFileAtomic replaces name with data through a temporary file and a
	// rename, so readers never observe a partial file.
	WriteFileAtomic(ctx context.Context, name string, data []byte, perm os.FileMode) error
	// Close tears down the session and any jump connections under it.
	Close() error
}

type sshSession struct {
	host   model.Host
	client *ssh.Client
	// hops are the jump connections carrying client, nearest first.
	hops []*ssh.Client

	mu   sync.Mutex
	sftp *sftp.Client
}

var _ Session = (*sshSession)(nil)

func (s *sshSession) Run(ctx context.Context, cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", &ExecutionError{Command: cmd, ExitStatus: -1, Err: err}
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Close()
		return "", &ExecutionError{Command: cmd, ExitStatus: -1, Err: ctx.Err()}
	case err = <-done:
	}
	if err == nil {
		return stdout.String(), nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &ExecutionError{Command: cmd, ExitStatus: exitErr.ExitStatus(), Stderr: stderr.String()}
	}
	return stdout.String(), &ExecutionError{Command: cmd, ExitStatus: -1, Stderr: stderr.String(), Err: err}
}

func (s *sshSession) sftpClient() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		return s.sftp, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	s.sftp = c
	return c, nil
}

func (s *sshSession) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.sftpClient()
	if err != nil {
		return nil, err
	}
	f, err := c.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote file %s: %w", name, err)
	}
	return data, nil
}

func (s *sshSession) WriteFileAtomic(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := s.sftpClient()
	if err != nil {
		return err
	}
	if dir := path.Dir(name); dir != "." {
		// Usually exists already.
		_ = c.MkdirAll(dir)
	}

	tmp := fmt.Sprintf("%s.kmhub.%d", name, time.Now().UnixNano())
	f, err := c.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary file on remote: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = c.Remove(tmp)
		return fmt.Errorf("failed to write temporary file on remote: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = c.Remove(tmp)
		return fmt.Errorf("failed to flush temporary file on remote: %w", err)
	}
	if err := c.Chmod(tmp, perm); err != nil {
		_ = c.Remove(tmp)
		return fmt.Errorf("failed to chmod temporary file: %w", err)
	}
	// Plain SFTP rename refuses to replace an existing file on OpenSSH.
	if err := c.PosixRename(tmp, name); err != nil {
		if rerr := c.Rename(tmp, name); rerr != nil {
			_ = c.Remove(tmp)
			return fmt.Errorf("failed to atomically rename %s: %w", name, errors.Join(err, rerr))
		}
	}
	return nil
}

// Close closes the sftp client, the session and then every jump connection
// outward. Disconnect errors are logged, not returned.
func (s *sshSession) Close() error {
	s.mu.Lock()
	if s.sftp != nil {
		closeQuietly(s.host.Name+" sftp", s.sftp)
		s.sftp = nil
	}
	s.mu.Unlock()
	closeQuietly(s.host.Name, s.client)
	for _, h := range s.hops {
		closeQuietly("jump", h)
	}
	s.hops = nil
	return nil
}

func closeQuietly(what string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		logging.Debugf("closing %s: %v", what, err)
	}
}
