package commands

import (
	"strconv"
	"strings"

	"github.com/buildtall-systems/storebridge/internal/materials"
)

// GiveKind is the result category of classifying a command.
type GiveKind int

const (
	NotAGive GiveKind = iota
	Give
	InvalidGive
)

func (k GiveKind) String() string {
	switch k {
	case NotAGive:
		return "not_a_give"
	case Give:
		return "give"
	case InvalidGive:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reasons reported for invalid give commands.
const (
	ReasonMalformed       = "malformed give command"
	ReasonInvalidAmount   = "invalid amount"
	ReasonUnknownMaterial = "unknown material"
)

// MaterialMatcher resolves item names to materials.
type MaterialMatcher interface {
	Match(name string) (materials.Material, bool)
}

// Classification describes a command as seen by the give interpreter.
type Classification struct {
	Kind     GiveKind
	Target   string             // Target token as written (Give only)
	Material materials.Material // Resolved item kind (Give only)
	Quantity int                // Positive item count (Give only)
	Reason   string             // One of the Reason constants (InvalidGive only)
	Detail   string             // Offending token, if any (InvalidGive only)
}

// Annotation returns the bracketed note appended to a failed command,
// e.g. "invalid amount: abc".
func (c Classification) Annotation() string {
	if c.Detail == "" {
		return c.Reason
	}
	return c.Reason + ": " + c.Detail
}

// IsGive reports whether command is syntactically a grant-item command.
func IsGive(command string) bool {
	lower := strings.ToLower(strings.TrimSpace(command))
	return strings.HasPrefix(lower, "give ") || strings.HasPrefix(lower, "minecraft:give ")
}

// GiveInterpreter recognizes and parses "give <target> <material> [amount]".
type GiveInterpreter struct {
	materials MaterialMatcher
}

// NewGiveInterpreter creates an interpreter resolving items through m.
func NewGiveInterpreter(m MaterialMatcher) *GiveInterpreter {
	return &GiveInterpreter{materials: m}
}

// Classify inspects a rendered command.
func (g *GiveInterpreter) Classify(command string) Classification {
	if !IsGive(command) {
		return Classification{Kind: NotAGive}
	}

	parts := strings.Fields(command)
	if len(parts) < 3 {
		return Classification{Kind: InvalidGive, Reason: ReasonMalformed}
	}

	quantity := 1
	if len(parts) > 3 {
		n, err := strconv.Atoi(parts[3])
		if err != nil || n < 1 {
			return Classification{Kind: InvalidGive, Reason: ReasonInvalidAmount, Detail: parts[3]}
		}
		quantity = n
	}

	material, ok := g.materials.Match(parts[2])
	if !ok {
		return Classification{Kind: InvalidGive, Reason: ReasonUnknownMaterial, Detail: parts[2]}
	}

	return Classification{
		Kind:     Give,
		Target:   parts[1],
		Material: material,
		Quantity: quantity,
	}
}
