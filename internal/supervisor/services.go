// Harmonia - Social Music Collaboration Platform
// Copyright 2026 Harmonia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-fm/harmonia

package supervisor

import "context"

// ContextRunner matches the RunWithContext shape shared by the hub, the
// signal pipeline, and the HTTP server. Defining the interface here keeps
// this package free of feature imports.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// Service adapts a ContextRunner to suture.Service with a stable name for
// event logs.
type Service struct {
	runner ContextRunner
	name   string
}

// NewService wraps runner as a named supervised service.
func NewService(name string, runner ContextRunner) *Service {
	return &Service{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture's event log.
func (s *Service) String() string {
	return s.name
}
