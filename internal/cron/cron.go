package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const maxSleepCap = 60 * time.Second

// ErrNoOccurrence is returned for expressions that never fire within a year.
var ErrNoOccurrence = errors.New("cron expression has no occurrence within a year")

// Timer runs the job loop until its context ends.
type Timer struct {
	addChan    chan Job
	removeChan chan string
	ctx        context.Context
}

// New starts a Timer. onFire runs on the timer goroutine with the job name.
func New(ctx context.Context, onFire func(name string)) *Timer {
	t := &Timer{
		addChan:    make(chan Job, 16),
		removeChan: make(chan string, 16),
		ctx:        ctx,
	}
	go t.run(onFire)
	return t
}

// Add schedules j.
func (t *Timer) Add(j Job) {
	select {
	case t.addChan <- j:
	case <-t.ctx.Done():
	}
}

// Remove cancels every pending job called name.
func (t *Timer) Remove(name string) {
	select {
	case t.removeChan <- name:
	case <-t.ctx.Done():
	}
}

func (t *Timer) run(onFire func(string)) {
	h := &jobHeap{}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].At)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-t.ctx.Done():
			return
		case j := <-t.addChan:
			heapPush(h, j)
			timerCh = resetTimer()
		case name := <-t.removeChan:
			heapRemove(h, name)
			timerCh = resetTimer()
		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				j := heapPop(h)
				onFire(j.Name)
				if j.Expr == "" {
					continue
				}
				if next, err := Next(j.Expr, time.Now()); err == nil {
					heapPush(h, Job{Name: j.Name, At: next, Expr: j.Expr})
				}
			}
			timerCh = resetTimer()
		}
	}
}

// Next returns the first time expr fires strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(expr, from, false)
}

// Every builds a recurring job for expr, first firing after from. The
// expression must have the five standard fields and fire at least once
// within a year.
func Every(name, expr string, from time.Time) (Job, error) {
	if len(strings.Fields(expr)) != 5 || !gronx.IsValid(expr) {
		return Job{}, fmt.Errorf("invalid cron expression %q", expr)
	}
	next, err := Next(expr, from)
	if err != nil {
		return Job{}, fmt.Errorf("cron expression %q: %w", expr, err)
	}
	if !next.Before(from.Add(365 * 24 * time.Hour)) {
		return Job{}, fmt.Errorf("%q: %w", expr, ErrNoOccurrence)
	}
	return Job{Name: name, At: next, Expr: expr}, nil
}
