package commands

import (
	"strings"
)

// Command represents a parsed console command.
type Command struct {
	Name string   // Base token (lowercase), as typed, including any namespace
	Args []string // Arguments after the base token
}

// Parse splits a console command into its base token and arguments.
// Returns nil if the command is empty or contains only whitespace.
func Parse(content string) *Command {
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return nil
	}

	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// Verb returns the base token without a leading slash or namespace,
// so "/minecraft:give" and "give" both yield "give".
func (c *Command) Verb() string {
	verb := strings.TrimPrefix(c.Name, "/")
	if i := strings.IndexByte(verb, ':'); i >= 0 {
		verb = verb[i+1:]
	}
	return verb
}

// Arg returns the i-th argument, or "" if absent.
func (c *Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}
