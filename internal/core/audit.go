// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/toeirei/keymaster-hub/internal/logging"
	"github.com/toeirei/keymaster-hub/internal/model"
)

// DefaultAuditConcurrency bounds the hosts audited at once.
const DefaultAuditConcurrency = 8

// AuditResult is the outcome of diffing one host.
type AuditResult struct {
	Host model.Host
	Diff model.HostDiff
	Err  error
}

// AuditAll diffs every stored host concurrently. A failing host yields a
// result with Err set and does not affect the others. Results are sorted by
// host name.
func (s *Service) AuditAll(ctx context.Context) ([]AuditResult, error) {
	hosts, err := s.store.GetAllHosts(ctx)
	if err != nil {
		return nil, err
	}
	return s.AuditHosts(ctx, hosts), nil
}

// AuditHosts diffs the given hosts concurrently.
func (s *Service) AuditHosts(ctx context.Context, hosts []model.Host) []AuditResult {
	var wg sync.WaitGroup
	results := make(chan AuditResult, len(hosts))
	sem := make(chan struct{}, s.concurrency)

	for _, h := range hosts {
		wg.Add(1)
		go func(host model.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			d, err := s.GetHostDiff(ctx, host)
			results <- AuditResult{Host: host, Diff: d, Err: err}
			s.logAudit(ctx, host, d, err)
		}(h)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]AuditResult, 0, len(hosts))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host.Name < out[j].Host.Name })
	return out
}

func (s *Service) logAudit(ctx context.Context, host model.Host, d model.HostDiff, err error) {
	action, details := "AUDIT_SUCCESS", d.Summary()
	if err != nil {
		action, details = "AUDIT_FAIL", fmt.Sprintf("host: %s, error: %v", host.Name, err)
	}
	if lerr := s.store.LogAction(context.WithoutCancel(ctx), action, details); lerr != nil {
		logging.Warnf("audit: recording %s for %s failed: %v", action, host.Name, lerr)
	}
}
