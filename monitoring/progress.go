package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/wifictl/control"
	"github.com/sarchlab/wifictl/sim"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

func (b *ProgressBar) snapshot() progressRsp {
	b.Lock()
	defer b.Unlock()

	return progressRsp{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

type progressRsp struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// CycleProgressHook returns a hook that tracks the cycles of a control loop
// on b. A cycle is in progress from its first exchange to its end.
func CycleProgressHook(b *ProgressBar) sim.Hook {
	inCycle := false

	return sim.HookFunc(func(ctx sim.HookCtx) {
		switch ctx.Pos {
		case control.HookPosExchange:
			if !inCycle {
				inCycle = true
				b.IncrementInProgress(1)
			}
		case control.HookPosCycleEnd:
			if inCycle {
				inCycle = false
				b.MoveInProgressToFinished(1)
			} else {
				b.IncrementFinished(1)
			}
		}
	})
}
