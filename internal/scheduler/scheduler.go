// Package scheduler drives the tester's two recurring cadences: the outer
// pair-enumeration round and the recorder's directory scan, both expressed
// as cron.Cron jobs rather than raw time.Ticker loops so that operators can
// inspect/adjust cadence the same way the rest of the stack does.
package scheduler

import (
	"sync"

	"github.com/oriys/pairtester/internal/logging"
	"github.com/robfig/cron/v3"
)

// Cadence manages the recurring jobs that drive the tester's run loop.
type Cadence struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a new Cadence using second-less (minute-resolution) cron
// expressions plus the "@every" descriptor, since none of this tester's
// cadences need sub-minute precision.
func New() *Cadence {
	return &Cadence{
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins executing registered jobs.
func (c *Cadence) Start() {
	c.cron.Start()
	logging.Op().Info("cadence started")
}

// Stop halts the cron scheduler and waits for any running job to finish.
func (c *Cadence) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// AddEvery registers fn to run on the given cron spec (e.g. "@every 1h",
// "@every 60s") under name, replacing any prior registration with that name.
func (c *Cadence) AddEvery(name, spec string, fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.entries[name]; ok {
		c.cron.Remove(id)
		delete(c.entries, name)
	}

	id, err := c.cron.AddFunc(spec, func() {
		logging.Op().Debug("cadence tick", "job", name)
		fn()
	})
	if err != nil {
		return err
	}
	c.entries[name] = id
	return nil
}

// Remove unregisters a named job.
func (c *Cadence) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.entries[name]; ok {
		c.cron.Remove(id)
		delete(c.entries, name)
	}
}
