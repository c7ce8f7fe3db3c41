// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

// Negotiator processes interface configuration responses: it records the
// panel firmware and flag bytes in Settings, logs every flag, and rejects
// panels missing a required capability.
type Negotiator struct {
	logger   *zap.Logger
	settings Settings
	recorder Recorder
	onReady  CapabilityHandler

	mu   sync.RWMutex
	caps *caddx.Capabilities
}

// NewNegotiator creates a negotiator persisting into settings
func NewNegotiator(logger *zap.Logger, settings Settings, recorder Recorder, onReady CapabilityHandler) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Negotiator{
		logger:   logger,
		settings: settings,
		recorder: recorder,
		onReady:  onReady,
	}
}

// Process handles one IntConfigRsp. Every missing required flag is logged
// before the *caddx.CapabilityError listing them all is returned.
func (n *Negotiator) Process(m *caddx.Message) (*caddx.Capabilities, error) {
	c, err := caddx.ParseInterfaceConfig(m)
	if err != nil {
		return nil, err
	}

	if n.settings != nil {
		n.settings.Set(KeyPanelFirmware, c.Firmware)
		for g, key := range FlagKeys {
			n.settings.Set(key, c.Flags[g])
		}
	}

	n.logger.Debug("panel firmware", zap.String("firmware", c.Firmware))
	n.logFlags(c)

	if err := c.Check(); err != nil {
		for _, f := range c.Missing() {
			n.logger.Error(f.Description+" is not enabled. This is required for proper operation.",
				zap.String("group", f.Group.String()),
				zap.String("flag", f.Name))
		}
		n.logger.Error("enable the required messages in the panel configuration before starting")
		n.recorder.Negotiated(false)

		n.mu.Lock()
		n.caps = nil
		n.mu.Unlock()
		return c, err
	}

	n.mu.Lock()
	n.caps = c
	n.mu.Unlock()

	n.recorder.Negotiated(true)
	n.logger.Info("panel capabilities negotiated", zap.String("firmware", c.Firmware))
	if n.onReady != nil {
		n.onReady(c)
	}
	return c, nil
}

func (n *Negotiator) logFlags(c *caddx.Capabilities) {
	if !n.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	for _, f := range caddx.Flags {
		if f == caddx.FlagsInGroup(caddx.TransitionFlags1)[0] {
			n.logger.Debug("transition-based broadcast messages enabled:")
		} else if f == caddx.FlagsInGroup(caddx.RequestFlags1)[0] {
			n.logger.Debug("command/request messages enabled:")
		}
		n.logger.Debug("  - "+f.Name, zap.String("group", f.Group.String()), zap.Bool("enabled", c.Enabled(f)))
	}
}

// Capabilities returns the last successfully negotiated capabilities, or
// nil before negotiation or after a failed one.
func (n *Negotiator) Capabilities() *caddx.Capabilities {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.caps
}
