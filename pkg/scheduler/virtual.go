package scheduler

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/journey/pkg/ports"
)

var _ ports.Scheduler = (*Virtual)(nil)

// Virtual is a deterministic scheduler whose clock only moves on Advance.
// Tasks still run on goroutines; only time is simulated.
type Virtual struct {
	mu       sync.Mutex
	cond     *sync.Cond
	now      time.Time
	seq      uint64
	sleepers []*sleeper
	wg       sync.WaitGroup
}

type sleeper struct {
	at   time.Time
	seq  uint64
	wake chan struct{}
}

// NewVirtual creates a virtual scheduler whose clock starts at start.
func NewVirtual(start time.Time) *Virtual {
	v := &Virtual{now: start}
	v.cond = sync.NewCond(&v.mu)
	return v
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Sleep parks the caller until the virtual clock reaches now+d.
func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	v.seq++
	s := &sleeper{at: v.now.Add(d), seq: v.seq, wake: make(chan struct{})}
	idx, _ := slices.BinarySearchFunc(v.sleepers, s, compareSleepers)
	v.sleepers = slices.Insert(v.sleepers, idx, s)
	v.cond.Broadcast()
	v.mu.Unlock()

	select {
	case <-s.wake:
		return nil
	case <-ctx.Done():
		v.mu.Lock()
		v.sleepers = slices.DeleteFunc(v.sleepers, func(o *sleeper) bool { return o == s })
		v.cond.Broadcast()
		v.mu.Unlock()
		return ctx.Err()
	}
}

// Go runs fn on a new goroutine tracked by Wait.
func (v *Virtual) Go(fn func()) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		fn()
	}()
}

// Advance moves the clock forward by d and wakes every sleeper whose deadline
// is reached, in deadline order. Woken tasks that sleep again measure from the
// new time.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	target := v.now.Add(d)
	for len(v.sleepers) > 0 && !v.sleepers[0].at.After(target) {
		s := v.sleepers[0]
		v.sleepers = v.sleepers[1:]
		v.now = s.at
		close(s.wake)
	}
	v.now = target
	v.cond.Broadcast()
}

// Sleepers returns the number of tasks currently parked in Sleep.
func (v *Virtual) Sleepers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.sleepers)
}

// BlockUntil waits until at least n tasks are parked in Sleep.
func (v *Virtual) BlockUntil(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for len(v.sleepers) < n {
		v.cond.Wait()
	}
}

// Wait blocks until every task started with Go has returned.
func (v *Virtual) Wait() {
	v.wg.Wait()
}

func compareSleepers(a, b *sleeper) int {
	if c := a.at.Compare(b.at); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}
