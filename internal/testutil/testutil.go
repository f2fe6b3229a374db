// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds test doubles shared across packages: an in-memory
// Session and an in-process SSH server.
package testutil

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/toeirei/keymaster-hub/internal/sshclient"
)

// FakeSession is an in-memory sshclient.Session. Commands mentioning
// authorized_keys are answered from Files unless Outputs has an entry.
type FakeSession struct {
	mu sync.Mutex

	Files     map[string][]byte
	Modes     map[string]os.FileMode
	Outputs   map[string]string
	ExitCodes map[string]int
	// RunErr and WriteErr, when set, fail every Run or WriteFileAtomic.
	RunErr   error
	WriteErr error
	// CloseFunc, if set, is called when Close() is invoked.
	CloseFunc func() error

	Commands []string
	Writes   int
	Closed   bool
}

var _ sshclient.Session = (*FakeSession)(nil)

// NewFakeSession returns a session whose authorized_keys holds content.
// An empty content means the file does not exist.
func NewFakeSession(authorizedKeys string) *FakeSession {
	f := &FakeSession{
		Files:     map[string][]byte{},
		Modes:     map[string]os.FileMode{},
		Outputs:   map[string]string{},
		ExitCodes: map[string]int{},
	}
	if authorizedKeys != "" {
		f.Files[sshclient.AuthorizedKeysPath] = []byte(authorizedKeys)
	}
	return f
}

func (f *FakeSession) Run(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, cmd)
	if f.RunErr != nil {
		return "", f.RunErr
	}
	out, ok := f.Outputs[cmd]
	if !ok && strings.Contains(cmd, "authorized_keys") {
		out = string(f.Files[sshclient.AuthorizedKeysPath])
	}
	if code := f.ExitCodes[cmd]; code != 0 {
		return out, &sshclient.ExecutionError{Command: cmd, ExitStatus: code}
	}
	return out, nil
}

func (f *FakeSession) ReadFile(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (f *FakeSession) WriteFileAtomic(_ context.Context, name string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.Files[name] = append([]byte(nil), data...)
	f.Modes[name] = perm
	f.Writes++
	return nil
}

// Close marks the session as closed and calls CloseFunc if provided.
func (f *FakeSession) Close() error {
	f.mu.Lock()
	f.Closed = true
	fn := f.CloseFunc
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// AuthorizedKeys returns the current authorized_keys content.
func (f *FakeSession) AuthorizedKeys() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.Files[sshclient.AuthorizedKeysPath])
}

// IsClosed reports whether Close was called.
func (f *FakeSession) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}
