package reporter

import "time"

// Delivery tracks one asynchronous send.
type Delivery struct {
	done    chan struct{}
	outcome Outcome
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

func completedDelivery(o Outcome) *Delivery {
	d := newDelivery()
	d.finish(o)
	return d
}

func (d *Delivery) finish(o Outcome) {
	d.outcome = o
	close(d.done)
}

// Done is closed once the report was sent, spilled or dropped.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the delivery completes or timeout elapses and reports
// whether it completed. A non-positive timeout does not block.
func (d *Delivery) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-d.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.done:
		return true
	case <-timer.C:
		return false
	}
}

// Outcome returns what happened to the report. It is empty until Done is
// closed.
func (d *Delivery) Outcome() Outcome {
	select {
	case <-d.done:
		return d.outcome
	default:
		return ""
	}
}
