// Package supervisor starts and stops lifecycle-managed components in phase
// order. It is the host side of the publisher's Start/Stop/Phase contract.
package supervisor

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Lifecycle is implemented by components managed by the supervisor.
type Lifecycle interface {
	Name() string
	Start() error
	StopWithCallback(callback func())
	IsRunning() bool
	IsAutoStartup() bool
	Phase() int
}

// Drainer is implemented by components that finish work asynchronously after
// StopWithCallback returns.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Supervisor owns an ordered set of components.
type Supervisor struct {
	components []Lifecycle
	logger     *zap.Logger
}

// New sorts components by ascending phase, keeping registration order within a
// phase.
func New(logger *zap.Logger, components ...Lifecycle) *Supervisor {
	sorted := append([]Lifecycle(nil), components...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Phase() < sorted[j].Phase()
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{components: sorted, logger: logger}
}

// Components returns the components in start order.
func (s *Supervisor) Components() []Lifecycle {
	return append([]Lifecycle(nil), s.components...)
}

// Start starts every auto-startup component that is not yet running, lowest
// phase first. If one fails, the components started so far are stopped.
func (s *Supervisor) Start(ctx context.Context) error {
	var started []Lifecycle
	for _, c := range s.components {
		if !c.IsAutoStartup() || c.IsRunning() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(err, s.stop(ctx, started))
		}

		s.logger.Info("starting component",
			zap.String("component", c.Name()),
			zap.Int("phase", c.Phase()))
		if err := c.Start(); err != nil {
			err = fmt.Errorf("failed to start %s: %w", c.Name(), err)
			return multierr.Append(err, s.stop(ctx, started))
		}
		started = append(started, c)
	}
	return nil
}

// Stop stops running components, highest phase first, waiting for each stop
// callback and drain until ctx ends.
func (s *Supervisor) Stop(ctx context.Context) error {
	return s.stop(ctx, s.components)
}

func (s *Supervisor) stop(ctx context.Context, components []Lifecycle) error {
	var errs error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if !c.IsRunning() {
			continue
		}

		s.logger.Info("stopping component",
			zap.String("component", c.Name()),
			zap.Int("phase", c.Phase()))

		stopped := make(chan struct{})
		c.StopWithCallback(func() { close(stopped) })

		select {
		case <-stopped:
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", c.Name(), ctx.Err()))
			continue
		}

		if d, ok := c.(Drainer); ok {
			if err := d.Wait(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("drain %s: %w", c.Name(), err))
			}
		}
	}
	return errs
}

// Register hooks the supervisor into an fx application.
func Register(lc fx.Lifecycle, s *Supervisor) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
