package cluster

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// NewReconnectBackOff returns a factory for the reconnect delay policy.
// With max <= base the delay is fixed at base; otherwise it grows
// exponentially from base up to max. A positive maxElapsed stops
// reconnecting once the summed delays reach it.
func NewReconnectBackOff(base, max, maxElapsed time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		if max > base {
			eb := backoff.NewExponentialBackOff()
			eb.InitialInterval = base
			eb.MaxInterval = max
			eb.Multiplier = 2
			eb.RandomizationFactor = 0.1
			eb.MaxElapsedTime = maxElapsed
			eb.Reset()
			return eb
		}
		var b backoff.BackOff = backoff.NewConstantBackOff(base)
		if maxElapsed > 0 {
			b = &elapsedLimit{delegate: b, limit: maxElapsed}
		}
		return b
	}
}

// elapsedLimit stops a delegate policy once the delays it handed out sum to
// limit. Only waiting time counts; time spent streaming does not.
type elapsedLimit struct {
	delegate backoff.BackOff
	limit    time.Duration
	spent    time.Duration
}

func (e *elapsedLimit) NextBackOff() time.Duration {
	if e.spent >= e.limit {
		return backoff.Stop
	}
	d := e.delegate.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	e.spent += d
	return d
}

func (e *elapsedLimit) Reset() {
	e.spent = 0
	e.delegate.Reset()
}
