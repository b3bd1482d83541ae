// Package servo validates and holds the flank servo loop parameters.
package servo

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/RoanBrand/monitortcp/internal/config"
	"github.com/RoanBrand/monitortcp/internal/model"
)

var ErrInvalidParams = errors.New("invalid servo parameters")

// Params are the loop settings carried by a flank_servo packet.
type Params = model.FlankServo

// Controller is the process wide control loop resource.
type Controller struct {
	limits config.ServoLimits

	mu      sync.Mutex
	params  Params
	applied uint64
}

func NewController(limits config.ServoLimits) *Controller {
	return &Controller{limits: limits}
}

// Validate rejects out of range parameters with a message naming the field. Values are never clamped.
func (c *Controller) Validate(p Params) error {
	l := &c.limits
	switch {
	case p.MaxIterations == 0 || p.MaxIterations > l.MaxIterations:
		return errors.Wrapf(ErrInvalidParams, "max_iterations %d not in [1, %d]", p.MaxIterations, l.MaxIterations)
	case p.Ramps == 0 || p.Ramps > l.MaxRamps:
		return errors.Wrapf(ErrInvalidParams, "number_of_ramps %d not in [1, %d]", p.Ramps, l.MaxRamps)
	case p.Steps == 0 || p.Steps > l.MaxSteps:
		return errors.Wrapf(ErrInvalidParams, "number_of_steps %d not in [1, %d]", p.Steps, l.MaxSteps)
	case p.RampMinimum < l.RampMin || p.RampMinimum > l.RampMax:
		return errors.Wrapf(ErrInvalidParams, "ramp_minimum %d not in [%d, %d]", p.RampMinimum, l.RampMin, l.RampMax)
	case int64(p.RampMinimum)+int64(p.Steps) > int64(l.RampMax)+1:
		return errors.Wrapf(ErrInvalidParams, "ramp from %d over %d steps passes %d", p.RampMinimum, p.Steps, l.RampMax)
	case p.Threshold < -l.ThresholdMax || p.Threshold > l.ThresholdMax:
		return errors.Wrapf(ErrInvalidParams, "threshold %d not in [%d, %d]", p.Threshold, -l.ThresholdMax, l.ThresholdMax)
	case math.IsNaN(p.Ki) || math.IsInf(p.Ki, 0) || p.Ki < 0:
		return errors.Wrapf(ErrInvalidParams, "ki %v must be finite and non-negative", p.Ki)
	}
	return nil
}

// Apply validates p and makes it the active loop configuration.
func (c *Controller) Apply(p Params) error {
	if err := c.Validate(p); err != nil {
		return err
	}

	c.mu.Lock()
	c.params = p
	c.applied++
	c.mu.Unlock()
	return nil
}

// Current returns the active parameters and how many times parameters were applied.
func (c *Controller) Current() (Params, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params, c.applied
}
