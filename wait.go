package skua

import (
	"context"
	"sync"
	"time"
)

// waitUntil blocks on c until ready reports true. l must be held and is
// held again on return.
//
// Every wake re-checks ready before anything else, so a waiter that was
// signalled for a condition that holds always takes it, even if its
// context or deadline ran out at the same moment. Deadlines and context
// cancellation are delivered as broadcasts taken under l, which means no
// wakeup can be lost between the check and Wait.
func waitUntil(ctx context.Context, l sync.Locker, c *sync.Cond, d deadline, ready func() (bool, error), noWait, timedOut error) error {
	ok, err := ready()
	if err != nil || ok {
		return err
	}
	if !d.block {
		return noWait
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.expired() {
		return timedOut
	}

	wake := func() {
		l.Lock()
		c.Broadcast()
		l.Unlock()
	}
	if !d.at.IsZero() {
		t := time.AfterFunc(time.Until(d.at), wake)
		defer t.Stop()
	}
	stop := context.AfterFunc(ctx, wake)
	defer stop()

	for {
		c.Wait()
		ok, err := ready()
		if err != nil || ok {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.expired() {
			return timedOut
		}
	}
}
