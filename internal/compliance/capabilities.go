package compliance

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mcp-compliance-tester/internal/client"
)

// CapabilityDetector determines which optional capabilities a connected
// server supports, preferring handshake metadata and falling back to probing
// the three list operations.
type CapabilityDetector struct {
	logger *logrus.Logger
}

// NewCapabilityDetector creates a detector.
func NewCapabilityDetector(logger *logrus.Logger) *CapabilityDetector {
	if logger == nil {
		logger = logrus.New()
	}
	return &CapabilityDetector{logger: logger}
}

// Detect returns the server's capability set. It never returns an error:
// detection failure yields an empty set and a logged warning, because a run
// must not abort on a server that cannot even report its capabilities.
func (d *CapabilityDetector) Detect(ctx context.Context, c client.Client) (caps CapabilitySet) {
	caps = make(CapabilitySet)

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Warn("Capability detection failed; assuming no capabilities")
			caps = make(CapabilitySet)
		}
	}()

	if declared := d.fromHandshake(c); len(declared) > 0 {
		return declared
	}
	return d.probe(ctx, c)
}

// fromHandshake intersects the handshake capability keys with the known
// capability enum. Unknown keys are ignored; logging/sampling/roots are only
// detectable here.
func (d *CapabilityDetector) fromHandshake(c client.Client) CapabilitySet {
	declared := c.GetServerCapabilities()
	caps := make(CapabilitySet)
	for _, known := range KnownCapabilities() {
		if _, ok := declared[string(known)]; ok {
			caps[known] = struct{}{}
		}
	}
	if len(caps) > 0 {
		d.logger.WithField("capabilities", caps.Sorted()).Debug("Capabilities taken from initialize handshake")
	}
	return caps
}

// probe concurrently invokes the three list operations. An operation that
// resolves contributes its capability; one that fails contributes nothing,
// since capability absence is expected here.
func (d *CapabilityDetector) probe(ctx context.Context, c client.Client) CapabilitySet {
	type probeFn struct {
		capability Capability
		run        func(context.Context) error
	}
	probes := []probeFn{
		{CapabilityTools, func(ctx context.Context) error {
			_, err := c.ListTools(ctx)
			return err
		}},
		{CapabilityResources, func(ctx context.Context) error {
			_, err := c.ListResources(ctx)
			return err
		}},
		{CapabilityPrompts, func(ctx context.Context) error {
			_, err := c.ListPrompts(ctx)
			return err
		}},
	}

	caps := make(CapabilitySet)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func(p probeFn) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.WithFields(logrus.Fields{
						"capability": p.capability,
						"panic":      r,
					}).Warn("Capability probe panicked")
				}
			}()
			if err := p.run(ctx); err != nil {
				d.logger.WithFields(logrus.Fields{
					"capability": p.capability,
				}).WithError(err).Debug("Capability probe failed; capability not supported")
				return
			}
			mu.Lock()
			caps[p.capability] = struct{}{}
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	d.logger.WithField("capabilities", caps.Sorted()).Debug("Capabilities detected by probing")
	return caps
}
