package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any threshold and any sequence of outcomes, the breaker opens exactly
// when the run of trailing failures reaches the threshold, and rejects calls
// from then on until the open timeout elapses.
func TestProperty_CircuitBreakerOpensOnConsecutiveFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("opens on the threshold-th consecutive failure", prop.ForAll(
		func(maxFailures int, outcomes []bool) bool {
			cb, _ := newTestBreaker(Config{MaxFailures: maxFailures, OpenTimeout: time.Hour})

			run := 0
			for _, failed := range outcomes {
				err := cb.Execute(context.Background(), func(context.Context) error {
					if failed {
						return errUnavailable
					}
					return nil
				})
				if run >= maxFailures {
					if !errors.Is(err, ErrCircuitOpen) {
						return false
					}
					continue
				}
				if failed {
					run++
				} else {
					run = 0
				}
			}

			if run >= maxFailures {
				return cb.State() == StateOpen
			}
			return cb.State() == StateClosed && cb.Failures() == run
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
