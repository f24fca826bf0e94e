package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command is a machine-readable description of a CLI command tree,
// intended for agents and scripts that drive the scheduler binary.
type Command struct {
	Path        string    `json:"path"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Aliases     []string  `json:"aliases,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// Describe walks the command tree from root and serializes the command at
// commandPath (space-separated, empty for the root itself).
func Describe(root *cobra.Command, commandPath string) (Command, error) {
	cmd := root
	for _, part := range strings.Fields(strings.TrimSpace(commandPath)) {
		next := findSubcommand(cmd, part)
		if next == nil {
			return Command{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return describe(cmd), nil
}

func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

func describe(cmd *cobra.Command) Command {
	out := Command{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   describeFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		out.Subcommands = append(out.Subcommands, describe(sub))
	}
	return out
}

func describeFlags(cmd *cobra.Command) []Flag {
	items := []Flag{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, Flag{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}
