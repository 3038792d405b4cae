package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// GiveCmd handles give <player> <item> [amount].
func GiveCmd(ctx context.Context, console Console, m MaterialMatcher, args []string) Result {
	if len(args) < 2 {
		return Result{Error: fmt.Errorf("%w: give <player> <item> [amount]", ErrUsage)}
	}

	player, err := onlinePlayer(console, args[0])
	if err != nil {
		return Result{Error: err}
	}

	material, ok := m.Match(args[1])
	if !ok {
		return Result{Error: fmt.Errorf("%w: unknown item %s", ErrUsage, args[1])}
	}

	amount := 1
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return Result{Error: fmt.Errorf("%w: amount must be a positive number", ErrUsage)}
		}
		amount = n
	}

	if err := console.Grant(ctx, player, material, amount); err != nil {
		return Result{Error: fmt.Errorf("giving %s: %w", material.Name(), err)}
	}

	return Result{Message: fmt.Sprintf("Gave %d [%s] to %s", amount, material.ID(), player)}
}

// TellCmd handles tell|msg <player> <message>.
func TellCmd(console Console, args []string) Result {
	if len(args) < 2 {
		return Result{Error: fmt.Errorf("%w: tell <player> <message>", ErrUsage)}
	}

	player, err := onlinePlayer(console, args[0])
	if err != nil {
		return Result{Error: err}
	}

	msg := strings.Join(args[1:], " ")
	if err := console.Message(player, "[Server -> you] "+msg); err != nil {
		return Result{Error: fmt.Errorf("messaging %s: %w", player, err)}
	}
	return Result{Message: fmt.Sprintf("You whisper to %s: %s", player, msg)}
}

// ClearCmd handles clear <player>.
func ClearCmd(ctx context.Context, console Console, args []string) Result {
	if len(args) < 1 {
		return Result{Error: fmt.Errorf("%w: clear <player>", ErrUsage)}
	}

	player, err := onlinePlayer(console, args[0])
	if err != nil {
		return Result{Error: err}
	}

	n, err := console.ClearInventory(ctx, player)
	if err != nil {
		return Result{Error: fmt.Errorf("clearing inventory: %w", err)}
	}
	if n == 0 {
		return Result{Message: fmt.Sprintf("No items were found on player %s", player)}
	}
	return Result{Message: fmt.Sprintf("Removed %d item stack(s) from player %s", n, player)}
}

// onlinePlayer returns the online player's name as the host knows it.
func onlinePlayer(console Console, name string) (string, error) {
	for _, p := range console.Players() {
		if strings.EqualFold(p, name) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPlayerOffline, name)
}
