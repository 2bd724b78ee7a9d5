package health

import (
	"context"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// Pinger is implemented by the object store, index and queue adapters.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// PingChecker reports a dependency healthy when its HealthCheck succeeds
// within the timeout.
type PingChecker struct {
	name    string
	target  Pinger
	timeout time.Duration
}

// NewAdapterChecker checks target under name. A zero timeout means 5s.
func NewAdapterChecker(name string, target Pinger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &PingChecker{name: name, target: target, timeout: timeout}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.target.HealthCheck(ctx)
	res := Result{
		Name:      c.name,
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	return res
}
