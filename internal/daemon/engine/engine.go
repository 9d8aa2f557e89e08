// Package engine runs the daemon's periodic collectors against the store.
package engine

import (
	"context"
	"sync"

	"github.com/grovetools/tabwatt/internal/daemon/collector"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/sirupsen/logrus"
)

const updateBuffer = 100

// Engine fans collector output into a single store writer.
type Engine struct {
	st         *store.Store
	collectors []collector.Collector
	log        *logrus.Entry
}

func New(st *store.Store, logger *logrus.Entry) *Engine {
	return &Engine{st: st, log: logger}
}

// Register must be called before Start.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Collectors lists registered collector names in registration order.
func (e *Engine) Collectors() []string {
	names := make([]string, len(e.collectors))
	for i, c := range e.collectors {
		names[i] = c.Name()
	}
	return names
}

// Start blocks until ctx is done and every collector has returned. Updates
// emitted during shutdown are still applied.
func (e *Engine) Start(ctx context.Context) {
	updates := make(chan store.Update, updateBuffer)
	applied := make(chan struct{})
	go func() {
		defer close(applied)
		for u := range updates {
			e.st.ApplyUpdate(u)
		}
	}()

	var wg sync.WaitGroup
	for _, c := range e.collectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := e.log.WithField("collector", c.Name())
			log.Debug("collector started")
			if err := c.Run(ctx, e.st, updates); err != nil {
				log.WithError(err).Error("collector exited with error")
			}
		}()
	}

	wg.Wait()
	close(updates)
	<-applied
}

func (e *Engine) Store() *store.Store {
	return e.st
}
