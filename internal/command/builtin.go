package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/eidolon/internal/experience"
	"github.com/nidhogg/eidolon/internal/psyche"
)

// ---------------------------------------------------------------------------
// Interfaces — kept here so builtin commands avoid importing concrete types.
// ---------------------------------------------------------------------------

// MoodReader exposes the persona's inner drives.
type MoodReader interface {
	Snapshot() psyche.Drives
	CheckConnection() psyche.ConnectionNeed
}

// GrowthReader exposes the persona's accumulated growth.
type GrowthReader interface {
	Summary() experience.GrowthSummary
}

// PlatformLister lists connected chat platforms.
type PlatformLister interface {
	Platforms() []string
}

// ---------------------------------------------------------------------------
// RegisterBuiltins wires up the introspection commands.
// ---------------------------------------------------------------------------

// RegisterBuiltins registers /help, /mood, /growth and /status.
func RegisterBuiltins(reg *Registry, mood MoodReader, growth GrowthReader, platforms PlatformLister) {
	reg.Register(helpCommand(reg))
	reg.Register(moodCommand(mood))
	reg.Register(growthCommand(growth))
	reg.Register(statusCommand(platforms))
}

// ---------------------------------------------------------------------------
// /help
// ---------------------------------------------------------------------------

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Description: "List all available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			cmds := reg.List()
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range cmds {
				fmt.Fprintf(&b, "  /%s — %s\n", c.Name, c.Description)
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
			}
			return &Result{Content: b.String()}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /mood
// ---------------------------------------------------------------------------

func moodCommand(mood MoodReader) *Command {
	return &Command{
		Name:        "mood",
		Description: "Show the persona's current inner state",
		Usage:       "/mood",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			d := mood.Snapshot()
			var b strings.Builder
			b.WriteString("Inner state:\n")
			fmt.Fprintf(&b, "  curiosity:  %.0f%%\n", d.Curiosity*100)
			fmt.Fprintf(&b, "  expression: %.0f%%\n", d.Expression*100)
			fmt.Fprintf(&b, "  connection: %.0f%%\n", d.Connection*100)
			fmt.Fprintf(&b, "  conversations so far: %d\n", d.InteractionCount)
			if need := mood.CheckConnection(); need.Lonely {
				b.WriteString("  ...feeling a little lonely lately.\n")
			}
			return &Result{Content: b.String(), Data: d}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /growth
// ---------------------------------------------------------------------------

func growthCommand(growth GrowthReader) *Command {
	return &Command{
		Name:        "growth",
		Description: "Show skills, interests and views picked up over time",
		Usage:       "/growth",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			sum := growth.Summary()
			var b strings.Builder
			b.WriteString("Growth so far:\n")
			fmt.Fprintf(&b, "  skills: %d, interests: %d, views: %d\n",
				sum.SkillCount, sum.InterestCount, sum.ViewCount)
			for _, s := range sum.TopSkills {
				fmt.Fprintf(&b, "  - %s (level %d)\n", s, sum.Levels[s])
			}
			return &Result{Content: b.String(), Data: sum}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /status
// ---------------------------------------------------------------------------

func statusCommand(platforms PlatformLister) *Command {
	return &Command{
		Name:        "status",
		Description: "Show connected chat platforms",
		Usage:       "/status",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			names := platforms.Platforms()
			if len(names) == 0 {
				return &Result{Content: "No platforms connected."}, nil
			}
			return &Result{
				Content: "Connected platforms: " + strings.Join(names, ", "),
			}, nil
		},
	}
}
