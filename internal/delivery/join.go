package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildtall-systems/storebridge/internal/fsm"
	"github.com/buildtall-systems/storebridge/internal/queue"
)

// PendingQueue is the queue surface used when a recipient comes online.
type PendingQueue interface {
	Items(recipient string) []queue.Item
	Drain(recipient string) []queue.Item
	Requeue(recipient string, items []queue.Item)
	Flush() error
}

// Scheduler runs work on the host main loop after a delay.
type Scheduler interface {
	Later(d time.Duration, fn func(ctx context.Context))
}

// Messenger sends a chat message to an online player.
type Messenger interface {
	Message(player, msg string) error
}

// JoinDeliverer hands queued items to recipients when they join.
type JoinDeliverer struct {
	queue     PendingQueue
	grantor   Grantor
	presence  Presence
	messenger Messenger
	scheduler Scheduler
	delay     time.Duration
	items     *fsm.ItemMachine
	log       *slog.Logger
}

func NewJoinDeliverer(q PendingQueue, grantor Grantor, presence Presence, messenger Messenger, scheduler Scheduler, delay time.Duration, logger *slog.Logger) *JoinDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &JoinDeliverer{
		queue:     q,
		grantor:   grantor,
		presence:  presence,
		messenger: messenger,
		scheduler: scheduler,
		delay:     delay,
		items:     fsm.NewItemMachine(),
		log:       logger,
	}
}

// OnJoin schedules delivery of the player's queued items. It runs on the
// main loop as a host join listener.
func (j *JoinDeliverer) OnJoin(_ context.Context, player string) {
	pending := j.queue.Items(player)
	if len(pending) == 0 {
		return
	}

	j.log.Info("delivering queued items", "recipient", player, "count", len(pending), "delay", j.delay)
	j.scheduler.Later(j.delay, func(ctx context.Context) {
		j.Deliver(ctx, player)
	})
}

// Deliver grants every queued item to an online player, puts back the ones
// that could not be granted and flushes once. It returns the number of items
// delivered. Must run on the main loop.
func (j *JoinDeliverer) Deliver(ctx context.Context, player string) int {
	if !j.presence.IsOnline(player) {
		j.log.Info("recipient left before queued delivery, keeping items", "recipient", player)
		return 0
	}

	items := j.queue.Drain(player)
	if len(items) == 0 {
		return 0
	}

	var failed []queue.Item
	delivered := 0
	for _, it := range items {
		state := j.itemTransition(ctx, fsm.ItemStateQueued, fsm.ItemEventDrain)

		if err := j.grantor.Grant(ctx, player, it.Material, it.Amount); err != nil {
			j.log.Warn("failed to deliver queued item", "recipient", player, "item", it.String(), "error", err)
			if j.items.CanRestore(state) {
				j.itemTransition(ctx, state, fsm.ItemEventRestore)
			}
			failed = append(failed, it)
			continue
		}

		if j.items.CanGrant(state) {
			j.itemTransition(ctx, state, fsm.ItemEventGrant)
		}
		delivered++
		j.log.Info("delivered queued item", "recipient", player, "material", it.Material.Name(), "amount", it.Amount, "note", it.Note)
	}

	j.queue.Requeue(player, failed)
	if err := j.queue.Flush(); err != nil {
		j.log.Error("failed to persist queue after delivery", "recipient", player, "error", err)
	}

	if delivered > 0 {
		msg := fmt.Sprintf("You received %d queued item(s) from the webstore!", delivered)
		if err := j.messenger.Message(player, msg); err != nil {
			j.log.Warn("could not notify recipient", "recipient", player, "error", err)
		}
	}
	return delivered
}

func (j *JoinDeliverer) itemTransition(ctx context.Context, state, event string) string {
	next, err := j.items.Transition(ctx, state, event)
	if err != nil {
		j.log.Error("item state transition failed", "state", state, "event", event, "error", err)
		return state
	}
	return next
}
