// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshclient turns stored hosts into live, authenticated SSH sessions,
// dialing through jump hosts where configured, and runs the remote key
// operations on top of them.
package sshclient // import "github.com/toeirei/keymaster-hub/internal/sshclient"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/toeirei/keymaster-hub/internal/db"
	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	// probeUser is sent during a key probe; authentication never starts.
	probeUser = "kmhub-probe"
)

// HostStore is the subset of the store the router reads.
type HostStore interface {
	GetHostByID(ctx context.Context, id int) (*model.Host, error)
	HostFingerprints(ctx context.Context, hostID int) ([]string, error)
}

// Options configure a Router.
type Options struct {
	// ConnectTimeout bounds dial plus handshake for each hop.
	ConnectTimeout time.Duration
	MaxJumpDepth   int
}

// Target is a host that may not be stored yet, as used during trust.
type Target struct {
	Name     string
	Address  string
	Port     int
	Username string
	JumpVia  *int
}

// Addr returns host:port for dialing.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// Router resolves hosts into sessions. It holds no connections between
// calls; every session it returns is owned by the caller.
type Router struct {
	store    HostStore
	cred     *Credential
	timeout  time.Duration
	maxDepth int
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewRouter returns a router authenticating with cred.
func NewRouter(store HostStore, cred *Credential, opts Options) *Router {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxJumpDepth <= 0 {
		opts.MaxJumpDepth = db.DefaultMaxJumpDepth
	}
	d := &net.Dialer{}
	return &Router{
		store:    store,
		cred:     cred,
		timeout:  opts.ConnectTimeout,
		maxDepth: opts.MaxJumpDepth,
		dial:     d.DialContext,
	}
}

// ResolveByID loads the host and resolves it.
func (r *Router) ResolveByID(ctx context.Context, id int) (Session, error) {
	h, err := r.store.GetHostByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNoSuchHost, id)
		}
		return nil, err
	}
	return r.Resolve(ctx, *h)
}

// Resolve connects to host, through its jump chain if it has one, verifying
// every hop against its stored fingerprints and authenticating with the
// router's credential.
func (r *Router) Resolve(ctx context.Context, host model.Host) (Session, error) {
	cd, err := host.ConnectionDetails()
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host.Name, err)
	}
	trusted, err := r.fingerprints(ctx, host)
	if err != nil {
		return nil, err
	}
	hops, err := r.openJumps(ctx, host.ID, host.JumpVia)
	if err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	client, err := r.connect(hctx, nearest(hops), host.Name, cd.Addr(), host.Username, trustingCallback(host.Name, trusted), r.cred.authMethods())
	if err != nil {
		closeClients(hops)
		return nil, err
	}
	logging.Debugf("resolved %s (%s) via %d jump host(s)", host.Name, host.Addr(), len(hops))
	return &sshSession{host: host, client: client, hops: hops}, nil
}

// ConnectFingerprint connects to a host that is not stored yet, accepting
// exactly the given fingerprint, and authenticates.
func (r *Router) ConnectFingerprint(ctx context.Context, t Target, fingerprint string) (Session, error) {
	hops, err := r.openJumps(ctx, 0, t.JumpVia)
	if err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	client, err := r.connect(hctx, nearest(hops), t.Name, t.Addr(), t.Username, trustingCallback(t.Name, []string{fingerprint}), r.cred.authMethods())
	if err != nil {
		closeClients(hops)
		return nil, err
	}
	host := model.Host{Name: t.Name, Address: t.Address, Port: t.Port, Username: t.Username, KeyFingerprint: fingerprint, JumpVia: t.JumpVia}
	return &sshSession{host: host, client: client, hops: hops}, nil
}

// Probe starts a handshake with t only to learn the host key it presents.
// No trust check is applied to t and no authentication is attempted; jump
// hosts on the way are verified as usual. The wait is bounded by ctx only.
func (r *Router) Probe(ctx context.Context, t Target) (ssh.PublicKey, error) {
	hops, err := r.openJumps(ctx, 0, t.JumpVia)
	if err != nil {
		return nil, err
	}
	defer closeClients(hops)

	keys := make(chan ssh.PublicKey, 1)
	client, err := r.connect(ctx, nearest(hops), t.Name, t.Addr(), probeUser, captureCallback(keys), nil)
	if client != nil {
		// Only reachable if the server skipped host key verification.
		closeQuietly(t.Name, client)
	}
	select {
	case key := <-keys:
		return key, nil
	default:
	}
	if err == nil {
		err = errors.New("handshake completed without presenting a host key")
	}
	return nil, err
}

func (r *Router) fingerprints(ctx context.Context, host model.Host) ([]string, error) {
	if host.ID == 0 {
		return []string{host.KeyFingerprint}, nil
	}
	fps, err := r.store.HostFingerprints(ctx, host.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchHost, host.Name)
		}
		return nil, err
	}
	return fps, nil
}

// openJumps walks the jump chain starting at via and connects it from the
// directly reachable end inward. The result is nearest-first: element 0
// carries the connection to the final target. targetID seeds the cycle
// check and is 0 for hosts that are not stored.
func (r *Router) openJumps(ctx context.Context, targetID int, via *int) ([]*ssh.Client, error) {
	var chain []model.Host
	visited := map[int]bool{}
	if targetID != 0 {
		visited[targetID] = true
	}
	for next := via; next != nil; {
		id := *next
		if visited[id] {
			return nil, fmt.Errorf("%w: host %d repeats", db.ErrJumpCycle, id)
		}
		if len(chain) >= r.maxDepth {
			return nil, fmt.Errorf("%w: more than %d hops", db.ErrJumpDepth, r.maxDepth)
		}
		visited[id] = true
		h, err := r.store.GetHostByID(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				err = ErrNoSuchHost
			}
			return nil, &HopError{Hop: fmt.Sprintf("#%d", id), Index: len(chain), Err: err}
		}
		chain = append(chain, *h)
		next = h.JumpVia
	}
	if len(chain) == 0 {
		return nil, nil
	}

	// Dial order is outermost first; keep clients nearest-first.
	clients := make([]*ssh.Client, len(chain))
	var prev *ssh.Client
	for i := len(chain) - 1; i >= 0; i-- {
		hop := chain[i]
		hopIndex := len(chain) - 1 - i
		cd, err := hop.ConnectionDetails()
		if err != nil {
			closeClients(clients[i+1:])
			return nil, &HopError{Hop: hop.Name, Index: hopIndex, Err: err}
		}
		trusted, err := r.store.HostFingerprints(ctx, hop.ID)
		if err != nil {
			closeClients(clients[i+1:])
			return nil, &HopError{Hop: hop.Name, Index: hopIndex, Err: err}
		}
		hctx, cancel := context.WithTimeout(ctx, r.timeout)
		c, err := r.connect(hctx, prev, hop.Name, cd.Addr(), hop.Username, trustingCallback(hop.Name, trusted), r.cred.authMethods())
		cancel()
		if err != nil {
			closeClients(clients[i+1:])
			return nil, &HopError{Hop: hop.Name, Index: hopIndex, Err: err}
		}
		clients[i] = c
		prev = c
	}
	return clients, nil
}

// connect dials addr, directly or through via, and runs the client
// handshake. Errors are classified; a *TrustError is returned as is.
func (r *Router) connect(ctx context.Context, via *ssh.Client, name, addr, user string, cb ssh.HostKeyCallback, auth []ssh.AuthMethod) (*ssh.Client, error) {
	var (
		conn net.Conn
		err  error
	)
	if via == nil {
		conn, err = r.dial(ctx, "tcp", addr)
	} else {
		conn, err = via.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, ClassifyConnectionError(name, err)
	}
	// The transport may not keep the callback's error in the chain it
	// returns, so the verdict is kept here.
	var verdict error
	cfg := &ssh.ClientConfig{
		User: user,
		Auth: auth,
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			verdict = cb(hostname, remote, key)
			return verdict
		},
		Timeout: r.timeout,
	}
	c, chans, reqs, err := handshake(ctx, conn, addr, cfg)
	if err != nil {
		if verdict != nil {
			err = verdict
		}
		if errors.Is(err, errKeyCaptured) {
			return nil, err
		}
		return nil, ClassifyConnectionError(name, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// handshake runs ssh.NewClientConn until it completes or ctx ends. Forwarded
// channels do not support deadlines, so cancellation closes the conn.
func handshake(ctx context.Context, conn net.Conn, addr string, cfg *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	type result struct {
		c     ssh.Conn
		chans <-chan ssh.NewChannel
		reqs  <-chan *ssh.Request
		err   error
	}
	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		done <- result{c, chans, reqs, err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			_ = conn.Close()
		}
		return res.c, res.chans, res.reqs, res.err
	case <-ctx.Done():
		_ = conn.Close()
		if res := <-done; res.err == nil {
			_ = res.c.Close()
		}
		return nil, nil, nil, ctx.Err()
	}
}

func nearest(hops []*ssh.Client) *ssh.Client {
	if len(hops) == 0 {
		return nil
	}
	return hops[0]
}

func closeClients(clients []*ssh.Client) {
	for _, c := range clients {
		if c != nil {
			closeQuietly("jump", c)
		}
	}
}
