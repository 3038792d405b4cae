package commands

import (
	"context"
	"errors"

	"github.com/buildtall-systems/storebridge/internal/materials"
)

// Console command names.
const (
	CmdGive     = "give"
	CmdSay      = "say"
	CmdTell     = "tell"
	CmdMsg      = "msg"
	CmdGameMode = "gamemode"
	CmdClear    = "clear"
	CmdList     = "list"
)

// ErrUnknownCommand indicates the console has no command by that name.
var ErrUnknownCommand = errors.New("unknown command")

// ErrPlayerOffline indicates the command targets a player who is not online.
var ErrPlayerOffline = errors.New("player is not online")

// ErrUsage indicates the command was called with bad arguments.
var ErrUsage = errors.New("usage")

// Result holds the response from a command execution.
type Result struct {
	Message string
	Error   error
}

// Console is the host surface that console commands act on. Every method is
// called from the host's main loop.
type Console interface {
	IsOnline(name string) bool
	Players() []string
	Grant(ctx context.Context, player string, m materials.Material, amount int) error
	Message(player, msg string) error
	Broadcast(msg string)
	SetGameMode(player, mode string) error
	ClearInventory(ctx context.Context, player string) (int64, error)
}

// Known reports whether cmd names a console command.
func Known(cmd *Command) bool {
	if cmd == nil {
		return false
	}
	switch cmd.Verb() {
	case CmdGive, CmdSay, CmdTell, CmdMsg, CmdGameMode, CmdClear, CmdList:
		return true
	}
	return false
}

// Execute runs the console command and returns a result.
func Execute(ctx context.Context, console Console, m MaterialMatcher, cmd *Command) Result {
	if !Known(cmd) {
		return Result{Error: ErrUnknownCommand}
	}

	switch cmd.Verb() {
	case CmdGive:
		return GiveCmd(ctx, console, m, cmd.Args)

	case CmdTell, CmdMsg:
		return TellCmd(console, cmd.Args)

	case CmdClear:
		return ClearCmd(ctx, console, cmd.Args)

	case CmdSay:
		return SayCmd(console, cmd.Args)

	case CmdGameMode:
		return GameModeCmd(console, cmd.Args)

	default:
		return ListCmd(console)
	}
}
