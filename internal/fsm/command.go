package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// CommandMachine validates the lifecycle of a single delivery command. It
// holds no per-command state so one machine serves every command.
type CommandMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewCommandMachine() *CommandMachine {
	cm := &CommandMachine{}
	cm.fsm = fsm.NewFSM(
		CommandStateReceived,
		fsm.Events{
			{Name: CommandEventReject, Src: []string{CommandStateReceived}, Dst: CommandStateRejected},
			{Name: CommandEventRender, Src: []string{CommandStateReceived}, Dst: CommandStateRendered},
			{Name: CommandEventExecute, Src: []string{CommandStateRendered}, Dst: CommandStateExecuted},
			{Name: CommandEventDeliver, Src: []string{CommandStateRendered}, Dst: CommandStateDelivered},
			{Name: CommandEventQueue, Src: []string{CommandStateRendered}, Dst: CommandStateQueued},
			{Name: CommandEventFail, Src: []string{CommandStateRendered}, Dst: CommandStateFailed},
		},
		fsm.Callbacks{},
	)
	return cm
}

func (cm *CommandMachine) CanTransition(currentState, event string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.fsm.SetState(currentState)
	return cm.fsm.Can(event)
}

func (cm *CommandMachine) Transition(ctx context.Context, currentState, event string) (string, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.fsm.SetState(currentState)
	if err := cm.fsm.Event(ctx, event); err != nil {
		return "", err
	}
	return cm.fsm.Current(), nil
}

func (cm *CommandMachine) AvailableEvents(currentState string) []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.fsm.SetState(currentState)
	return cm.fsm.AvailableTransitions()
}

// IsTerminal reports whether no further event applies to state.
func (cm *CommandMachine) IsTerminal(state string) bool {
	return len(cm.AvailableEvents(state)) == 0
}
