package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildtall-systems/storebridge/internal/commands"
	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/materials"
)

// Grant adds amount of m to an online player's inventory and tells them.
// Must run on the main loop.
func (r *Runtime) Grant(ctx context.Context, name string, m materials.Material, amount int) error {
	if !r.IsOnline(name) {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, name)
	}
	if amount < 1 {
		return db.ErrInvalidAmount
	}

	total, err := r.db.AddInventoryItem(ctx, name, m.Key(), amount)
	if err != nil {
		return fmt.Errorf("granting %s: %w", m.Name(), err)
	}

	r.log.Debug("granted item", "player", name, "material", m.Key(), "amount", amount, "stack", total)
	return r.Message(name, fmt.Sprintf("You received %dx %s", amount, m.Name()))
}

// ClearInventory removes everything the player holds.
func (r *Runtime) ClearInventory(ctx context.Context, name string) (int64, error) {
	return r.db.ClearInventory(ctx, name)
}

// Inventory returns the player's stacks.
func (r *Runtime) Inventory(ctx context.Context, name string) ([]db.InventoryItem, error) {
	return r.db.GetInventoryItems(ctx, name)
}

// Dispatch runs a console command. It returns false for unknown commands and
// for commands that ran but did not succeed, such as a bad argument or an
// offline target. A non-nil error means the host itself failed.
// Must run on the main loop.
func (r *Runtime) Dispatch(ctx context.Context, command string) (bool, error) {
	cmd := commands.Parse(command)
	if !commands.Known(cmd) {
		r.log.Warn("unknown console command", "command", command)
		return false, nil
	}

	result := commands.Execute(ctx, r, r.materials, cmd)
	if result.Error != nil {
		if errors.Is(result.Error, commands.ErrUsage) || errors.Is(result.Error, commands.ErrPlayerOffline) {
			r.log.Info("console command did not succeed", "command", command, "reason", result.Error)
			return false, nil
		}
		return false, result.Error
	}

	r.log.Info("console", "command", command, "output", result.Message)
	return true, nil
}
