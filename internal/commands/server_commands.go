package commands

import (
	"fmt"
	"strings"
)

// Game modes accepted by gamemode.
var gameModes = map[string]string{
	"survival":  "survival",
	"s":         "survival",
	"0":         "survival",
	"creative":  "creative",
	"c":         "creative",
	"1":         "creative",
	"adventure": "adventure",
	"a":         "adventure",
	"2":         "adventure",
	"spectator": "spectator",
	"sp":        "spectator",
	"3":         "spectator",
}

// SayCmd handles say <message>.
func SayCmd(console Console, args []string) Result {
	if len(args) == 0 {
		return Result{Error: fmt.Errorf("%w: say <message>", ErrUsage)}
	}

	msg := "[Server] " + strings.Join(args, " ")
	console.Broadcast(msg)
	return Result{Message: msg}
}

// GameModeCmd handles gamemode <mode> <player>. The console has no player
// of its own, so the target is required.
func GameModeCmd(console Console, args []string) Result {
	if len(args) < 2 {
		return Result{Error: fmt.Errorf("%w: gamemode <mode> <player>", ErrUsage)}
	}

	mode, ok := gameModes[strings.ToLower(args[0])]
	if !ok {
		return Result{Error: fmt.Errorf("%w: unknown game mode %s", ErrUsage, args[0])}
	}

	player, err := onlinePlayer(console, args[1])
	if err != nil {
		return Result{Error: err}
	}

	if err := console.SetGameMode(player, mode); err != nil {
		return Result{Error: fmt.Errorf("setting game mode: %w", err)}
	}
	return Result{Message: fmt.Sprintf("Set %s's game mode to %s", player, mode)}
}

// ListCmd handles list.
func ListCmd(console Console) Result {
	players := console.Players()
	if len(players) == 0 {
		return Result{Message: "There are 0 players online."}
	}
	return Result{Message: fmt.Sprintf("There are %d players online: %s", len(players), strings.Join(players, ", "))}
}
