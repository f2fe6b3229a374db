// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecFunc answers an exec request with output and an exit status.
type ExecFunc func(cmd string) (stdout, stderr string, status uint32)

// SSHServer is an in-process SSH server listening on 127.0.0.1. It accepts
// the client keys it was created with, answers exec requests, forwards
// direct-tcpip channels and serves sftp rooted at Home.
type SSHServer struct {
	Addr       string
	HostSigner ssh.Signer
	// Home stands in for the login user's home directory.
	Home string

	listener   net.Listener
	authorized map[string]bool
	wg         sync.WaitGroup

	mu         sync.Mutex
	serverKeys string
	exec       ExecFunc
	commands   []string
	forwards   []string
}

// NewSSHServer starts a server accepting clientKeys. It shuts down when the
// test ends.
func NewSSHServer(t testing.TB, clientKeys ...ssh.PublicKey) *SSHServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &SSHServer{
		Addr:       l.Addr().String(),
		HostSigner: NewSigner(t),
		Home:       t.TempDir(),
		listener:   l,
		authorized: map[string]bool{},
	}
	for _, k := range clientKeys {
		s.authorized[string(k.Marshal())] = true
	}
	if err := os.MkdirAll(filepath.Join(s.Home, ".ssh"), 0o700); err != nil {
		t.Fatalf("mkdir .ssh: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if s.authorized[string(key.Marshal())] {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key %s", ssh.FingerprintSHA256(key))
		},
	}
	cfg.AddHostKey(s.HostSigner)

	s.wg.Add(1)
	go s.serve(cfg)
	t.Cleanup(s.Close)
	return s
}

// Host returns the listening address without the port.
func (s *SSHServer) Host() string {
	h, _, _ := net.SplitHostPort(s.Addr)
	return h
}

// Port returns the listening port.
func (s *SSHServer) Port() int {
	_, p, _ := net.SplitHostPort(s.Addr)
	n, _ := strconv.Atoi(p)
	return n
}

// Fingerprint returns the SHA256 fingerprint of the server's host key.
func (s *SSHServer) Fingerprint() string {
	return ssh.FingerprintSHA256(s.HostSigner.PublicKey())
}

// WriteAuthorizedKeys replaces the login user's authorized_keys.
func (s *SSHServer) WriteAuthorizedKeys(t testing.TB, content string) {
	t.Helper()
	if err := os.WriteFile(s.authorizedKeysPath(), []byte(content), 0o600); err != nil {
		t.Fatalf("write authorized_keys: %v", err)
	}
}

// ReadAuthorizedKeys returns the login user's authorized_keys, or "" when
// the file does not exist.
func (s *SSHServer) ReadAuthorizedKeys(t testing.TB) string {
	t.Helper()
	data, err := os.ReadFile(s.authorizedKeysPath())
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		t.Fatalf("read authorized_keys: %v", err)
	}
	return string(data)
}

// SetServerKeys sets the output for commands reading
// /etc/ssh/ssh_host_*_key.pub.
func (s *SSHServer) SetServerKeys(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverKeys = content
}

// SetExec replaces the default command handling.
func (s *SSHServer) SetExec(fn ExecFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exec = fn
}

// Commands returns the exec requests received so far.
func (s *SSHServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Forwards returns the direct-tcpip destinations requested so far.
func (s *SSHServer) Forwards() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.forwards...)
}

// Close stops accepting connections. Established connections run until
// their clients disconnect.
func (s *SSHServer) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *SSHServer) authorizedKeysPath() string {
	return filepath.Join(s.Home, ".ssh", "authorized_keys")
}

func (s *SSHServer) serve(cfg *ssh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, cfg)
	}
}

func (s *SSHServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		// Probes abort the handshake on purpose.
		_ = conn.Close()
		return
	}
	defer func() { _ = sconn.Close() }()
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		switch nc.ChannelType() {
		case "session":
			go s.handleSession(nc)
		case "direct-tcpip":
			go s.handleDirectTCPIP(nc)
		default:
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

func (s *SSHServer) handleSession(nc ssh.NewChannel) {
	ch, reqs, err := nc.Accept()
	if err != nil {
		return
	}
	defer func() { _ = ch.Close() }()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.mu.Lock()
			s.commands = append(s.commands, p.Command)
			exec := s.exec
			s.mu.Unlock()
			if exec == nil {
				exec = s.defaultExec
			}
			stdout, stderr, status := exec(p.Command)
			_, _ = io.WriteString(ch, stdout)
			_, _ = io.WriteString(ch.Stderr(), stderr)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			return
		case "subsystem":
			var p struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil || p.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			srv, err := sftp.NewServer(ch, sftp.WithServerWorkingDirectory(s.Home))
			if err != nil {
				return
			}
			_ = srv.Serve()
			_ = srv.Close()
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *SSHServer) handleDirectTCPIP(nc ssh.NewChannel) {
	var p struct {
		Host     string
		Port     uint32
		OrigHost string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
		_ = nc.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}
	dest := net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
	s.mu.Lock()
	s.forwards = append(s.forwards, dest)
	s.mu.Unlock()

	target, err := net.Dial("tcp", dest)
	if err != nil {
		_ = nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		_ = target.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(ch, target)
		_ = ch.CloseWrite()
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(target, ch)
		if tc, ok := target.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		done <- struct{}{}
	}()
	<-done
	<-done
	_ = ch.Close()
	_ = target.Close()
}

func (s *SSHServer) defaultExec(cmd string) (string, string, uint32) {
	switch {
	case strings.Contains(cmd, "authorized_keys"):
		data, err := os.ReadFile(s.authorizedKeysPath())
		if errors.Is(err, os.ErrNotExist) {
			return "", "", 0
		}
		if err != nil {
			return "", err.Error(), 1
		}
		return string(data), "", 0
	case strings.Contains(cmd, "ssh_host_"):
		s.mu.Lock()
		keys := s.serverKeys
		s.mu.Unlock()
		if keys == "" {
			return "", "cat: /etc/ssh/ssh_host_*_key.pub: No such file or directory\n", 1
		}
		return keys, "", 0
	default:
		return "", "sh: command not found\n", 127
	}
}
