package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// ItemMachine governs a pending item handed out by a queue drain: it is
// either granted or restored to the queue.
type ItemMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewItemMachine() *ItemMachine {
	im := &ItemMachine{}
	im.fsm = fsm.NewFSM(
		ItemStateQueued,
		fsm.Events{
			{Name: ItemEventDrain, Src: []string{ItemStateQueued}, Dst: ItemStateDraining},
			{Name: ItemEventGrant, Src: []string{ItemStateDraining}, Dst: ItemStateGranted},
			{Name: ItemEventRestore, Src: []string{ItemStateDraining}, Dst: ItemStateQueued},
		},
		fsm.Callbacks{},
	)
	return im
}

func (im *ItemMachine) Transition(ctx context.Context, currentState, event string) (string, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.fsm.SetState(currentState)
	if err := im.fsm.Event(ctx, event); err != nil {
		return "", err
	}
	return im.fsm.Current(), nil
}

func (im *ItemMachine) CanGrant(currentState string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.fsm.SetState(currentState)
	return im.fsm.Can(ItemEventGrant)
}

func (im *ItemMachine) CanRestore(currentState string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.fsm.SetState(currentState)
	return im.fsm.Can(ItemEventRestore)
}
