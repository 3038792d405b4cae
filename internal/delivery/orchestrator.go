package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buildtall-systems/storebridge/internal/commands"
	"github.com/buildtall-systems/storebridge/internal/fsm"
	"github.com/buildtall-systems/storebridge/internal/materials"
	"github.com/buildtall-systems/storebridge/internal/queue"
)

// Executor runs a non-grant command on the host.
type Executor interface {
	Dispatch(ctx context.Context, command string) (bool, error)
}

// Presence reports whether a recipient is reachable.
type Presence interface {
	IsOnline(name string) bool
}

// Grantor hands an item straight to a reachable recipient.
type Grantor interface {
	Grant(ctx context.Context, recipient string, m materials.Material, amount int) error
}

// Queue holds items for unreachable recipients.
type Queue interface {
	Add(recipient string, item queue.Item) error
}

// Policy is the configuration a delivery runs under. A request sees one
// Policy for its whole duration.
type Policy struct {
	Whitelist         *commands.Whitelist
	QueueOfflineItems bool
}

// Orchestrator processes delivery requests. Deliver must be called from the
// host main loop.
type Orchestrator struct {
	executor Executor
	presence Presence
	grantor  Grantor
	queue    Queue
	give     *commands.GiveInterpreter
	machine  *fsm.CommandMachine
	log      *slog.Logger
}

func NewOrchestrator(executor Executor, presence Presence, grantor Grantor, q Queue, m commands.MaterialMatcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		executor: executor,
		presence: presence,
		grantor:  grantor,
		queue:    q,
		give:     commands.NewGiveInterpreter(m),
		machine:  fsm.NewCommandMachine(),
		log:      logger,
	}
}

// Deliver runs every command of a validated request in order. One command's
// failure never stops the ones after it.
func (o *Orchestrator) Deliver(ctx context.Context, req Request, policy Policy) Result {
	log := o.log.With("order_id", req.OrderID.String(), "recipient", req.Recipient)

	dm := fsm.NewDeliveryMachine()
	result := newResult(req)

	dm.OnEnter(fsm.DeliveryStateAggregated, func() {
		log.Info("delivery summary",
			"success", result.Success,
			"executed", len(result.ExecutedCommands),
			"failed", len(result.FailedCommands),
			"queued", len(result.QueuedCommands))
	})

	o.advance(ctx, dm, fsm.DeliveryEventStart, log)
	log.Info("executing commands", "count", len(req.Commands))

	for _, raw := range req.Commands {
		result.add(o.process(ctx, req, policy, raw, log))
	}

	result.finish()
	o.advance(ctx, dm, fsm.DeliveryEventFinish, log)
	return result
}

func (o *Orchestrator) advance(ctx context.Context, dm *fsm.DeliveryMachine, event string, log *slog.Logger) {
	if err := dm.Event(ctx, event); err != nil {
		log.Error("delivery state transition failed", "event", event, "error", err)
	}
}

// process takes one raw command to a terminal state.
func (o *Orchestrator) process(ctx context.Context, req Request, policy Policy, raw string, log *slog.Logger) Outcome {
	rendered := commands.Render(raw, req.Recipient, req.OrderID.String())

	if !policy.Whitelist.Allowed(raw) {
		log.Warn("command blocked by whitelist", "command", rendered)
		return o.finish(ctx, fsm.CommandStateReceived, fsm.CommandEventReject, rendered, NoteNotWhitelisted)
	}

	state := o.transition(ctx, fsm.CommandStateReceived, fsm.CommandEventRender)
	log.Info("processing command", "command", rendered)

	cls := o.give.Classify(rendered)
	switch cls.Kind {
	case commands.InvalidGive:
		if cls.Reason == commands.ReasonUnknownMaterial {
			log.Warn("invalid material in give command", "material", cls.Detail)
		}
		return o.finish(ctx, state, fsm.CommandEventFail, rendered, cls.Annotation())

	case commands.Give:
		if o.presence.IsOnline(req.Recipient) {
			return o.grant(ctx, state, req, cls, rendered, log)
		}
		if policy.QueueOfflineItems {
			return o.enqueue(ctx, state, req, cls, rendered, log)
		}
		// Queueing disabled: let the host run the command as-is.
	}

	return o.execute(ctx, state, rendered, log)
}

func (o *Orchestrator) grant(ctx context.Context, state string, req Request, cls commands.Classification, rendered string, log *slog.Logger) Outcome {
	if err := o.grantor.Grant(ctx, req.Recipient, cls.Material, cls.Quantity); err != nil {
		log.Warn("failed to deliver item to online recipient", "material", cls.Material.Name(), "error", err)
		return o.finish(ctx, state, fsm.CommandEventFail, rendered, noteDeliveryFailed+err.Error())
	}
	log.Info("delivered item directly", "material", cls.Material.Name(), "amount", cls.Quantity)
	return o.finish(ctx, state, fsm.CommandEventDeliver, rendered, NoteDelivered)
}

func (o *Orchestrator) enqueue(ctx context.Context, state string, req Request, cls commands.Classification, rendered string, log *slog.Logger) Outcome {
	item := queue.Item{
		Material: cls.Material,
		Amount:   cls.Quantity,
		Note:     "order " + req.OrderID.String(),
	}
	// A flush failure leaves the item queued in memory.
	if err := o.queue.Add(req.Recipient, item); err != nil {
		log.Error("queued item not persisted", "item", item.String(), "error", err)
	}
	log.Info("queued item for offline recipient", "material", cls.Material.Name(), "amount", cls.Quantity)
	return o.finish(ctx, state, fsm.CommandEventQueue, rendered, NoteQueued)
}

func (o *Orchestrator) execute(ctx context.Context, state, rendered string, log *slog.Logger) Outcome {
	ok, err := o.dispatch(ctx, rendered)
	if err != nil {
		log.Warn("exception executing command", "command", rendered, "error", err)
		return o.finish(ctx, state, fsm.CommandEventFail, rendered, noteExecutionError+err.Error())
	}
	if !ok {
		log.Warn("command execution failed", "command", rendered)
		return o.finish(ctx, state, fsm.CommandEventFail, rendered, NoteExecutionFalse)
	}
	log.Info("command executed successfully", "command", rendered)
	return o.finish(ctx, state, fsm.CommandEventExecute, rendered, "")
}

// dispatch turns an executor panic into an error so it stays with its command.
func (o *Orchestrator) dispatch(ctx context.Context, command string) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("panic: %v", p)
		}
	}()
	return o.executor.Dispatch(ctx, command)
}

func (o *Orchestrator) finish(ctx context.Context, state, event, rendered, note string) Outcome {
	return Outcome{
		Command: rendered,
		State:   o.transition(ctx, state, event),
		Note:    note,
	}
}

func (o *Orchestrator) transition(ctx context.Context, state, event string) string {
	next, err := o.machine.Transition(ctx, state, event)
	if err != nil {
		o.log.Error("command state transition failed", "state", state, "event", event, "error", err)
		return fsm.CommandStateFailed
	}
	return next
}
