// Package lifecycle starts long-running components in order and stops them in reverse.
package lifecycle

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	name string
	Component
}

type Runtime struct {
	logger *log.Entry

	mu         sync.Mutex
	components []namedComponent
	started    []namedComponent
}

func NewRuntime(logger *log.Entry) *Runtime {
	return &Runtime{logger: logger}
}

// Register appends a component; nil components are ignored.
func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, namedComponent{name: name, Component: component})
}

// Start brings components up in registration order. On failure the ones
// already running are stopped before the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.components {
		if err := c.Start(ctx); err != nil {
			_ = r.stopStarted(ctx)
			return pkgerrors.WithMessagef(err, "start %s", c.name)
		}
		r.started = append(r.started, c)
		r.logger.WithField("component", c.name).Debug("component started")
	}
	return nil
}

// Stop shuts running components down in reverse order and joins their errors.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopStarted(ctx)
}

func (r *Runtime) stopStarted(ctx context.Context) error {
	var stopErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		c := r.started[i]
		if err := c.Stop(ctx); err != nil {
			r.logger.WithFields(log.Fields{"component": c.name, "error": err.Error()}).Warn("cant stop component")
			stopErr = errors.Join(stopErr, pkgerrors.WithMessagef(err, "stop %s", c.name))
			continue
		}
		r.logger.WithField("component", c.name).Debug("component stopped")
	}
	r.started = nil
	return stopErr
}
