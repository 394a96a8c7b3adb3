package ui

import (
	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/look"
	"voxelhud.ai/internal/sim/sched"
)

// Controller commits overlays through the scheduler so display calls happen on the engine's
// safe-call boundary. Present does not wait for the commit.
type Controller struct {
	builder *Builder
	display host.Display
	sched   sched.Scheduler
	log     *zap.Logger
}

func NewController(b *Builder, d host.Display, s sched.Scheduler, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{builder: b, display: d, sched: s, log: logger.Named("ui")}
}

func (c *Controller) Present(o host.Observer, meta look.Metadata, extended bool) {
	overlay := c.builder.Build(meta, extended)
	id := o.ID()
	c.sched.Defer(func() {
		if err := c.display.Show(id, overlay); err != nil {
			c.log.Warn("overlay commit failed", zap.String("observer", id), zap.Error(err))
		}
	})
}

func (c *Controller) Clear(o host.Observer) {
	if err := c.display.Clear(o.ID()); err != nil {
		c.log.Warn("overlay clear failed", zap.String("observer", o.ID()), zap.Error(err))
	}
}
