package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// DeliveryMachine tracks one delivery request from validation to its
// aggregated result. Unlike CommandMachine it is stateful: create one per
// request.
type DeliveryMachine struct {
	fsm     *fsm.FSM
	mu      sync.Mutex
	onEnter map[string]func()
}

func NewDeliveryMachine() *DeliveryMachine {
	dm := &DeliveryMachine{
		onEnter: make(map[string]func()),
	}
	dm.fsm = fsm.NewFSM(
		DeliveryStateValidated,
		fsm.Events{
			{Name: DeliveryEventStart, Src: []string{DeliveryStateValidated}, Dst: DeliveryStateProcessing},
			{Name: DeliveryEventFinish, Src: []string{DeliveryStateProcessing}, Dst: DeliveryStateAggregated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				// Event already holds the machine lock.
				if fn, ok := dm.onEnter[e.Dst]; ok {
					fn()
				}
			},
		},
	)
	return dm
}

func (dm *DeliveryMachine) Current() string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.fsm.Current()
}

func (dm *DeliveryMachine) Event(ctx context.Context, event string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.fsm.Event(ctx, event)
}

func (dm *DeliveryMachine) Can(event string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.fsm.Can(event)
}

// OnEnter registers fn to run each time the machine enters state. fn must not
// call back into the machine.
func (dm *DeliveryMachine) OnEnter(state string, fn func()) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.onEnter[state] = fn
}
