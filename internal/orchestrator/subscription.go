package orchestrator

import "sync"

// subscriptionBuffer is how many snapshots a slow subscriber may lag by
const subscriptionBuffer = 16

// Subscription receives a Snapshot after every state change
type Subscription struct {
	// Updates is closed when the subscription ends
	Updates <-chan Snapshot
	// Done is closed when the subscription ends
	Done <-chan struct{}

	o       *Orchestrator
	updates chan Snapshot
	done    chan struct{}
	once    sync.Once
}

// Subscribe registers a new subscriber. The current snapshot is queued
// immediately.
func (o *Orchestrator) Subscribe() *Subscription {
	updates := make(chan Snapshot, subscriptionBuffer)
	done := make(chan struct{})
	sub := &Subscription{
		Updates: updates,
		Done:    done,
		o:       o,
		updates: updates,
		done:    done,
	}

	o.mu.Lock()
	o.subs[sub] = struct{}{}
	updates <- o.snap
	o.mu.Unlock()

	return sub
}

// Unsubscribe removes sub. It is safe to call more than once.
func (o *Orchestrator) Unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		o.mu.Lock()
		delete(o.subs, sub)
		close(sub.updates)
		o.mu.Unlock()
		close(sub.done)
	})
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.o.Unsubscribe(s)
}

// publishLocked fans the current snapshot out. A full buffer drops its
// oldest entry so the newest snapshot is always delivered.
func (o *Orchestrator) publishLocked() {
	for sub := range o.subs {
		select {
		case sub.updates <- o.snap:
			continue
		default:
		}
		select {
		case <-sub.updates:
		default:
		}
		select {
		case sub.updates <- o.snap:
		default:
		}
	}
}
