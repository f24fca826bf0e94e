package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func buildTestTree() *cobra.Command {
	root := &cobra.Command{Use: "sched"}
	cycle := &cobra.Command{Use: "cycle", Short: "Cycle commands"}
	run := &cobra.Command{Use: "run", Short: "Run one cycle", Aliases: []string{"once"}}
	run.Flags().String("tokens", "", "Comma-separated token addresses")
	hidden := &cobra.Command{Use: "debug", Hidden: true}
	cycle.AddCommand(run)
	root.AddCommand(cycle, hidden)
	return root
}

func TestDescribeRoot(t *testing.T) {
	got, err := Describe(buildTestTree(), "")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got.Path != "sched" {
		t.Fatalf("path = %q", got.Path)
	}
	if len(got.Subcommands) != 1 {
		t.Fatalf("expected hidden command excluded, got %d subcommands", len(got.Subcommands))
	}
	if got.Subcommands[0].Use != "cycle" {
		t.Fatalf("subcommand = %q", got.Subcommands[0].Use)
	}
}

func TestDescribeNestedPathAndAlias(t *testing.T) {
	got, err := Describe(buildTestTree(), "cycle run")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got.Path != "sched cycle run" {
		t.Fatalf("path = %q", got.Path)
	}
	if len(got.Flags) != 1 || got.Flags[0].Name != "tokens" {
		t.Fatalf("flags = %+v", got.Flags)
	}

	byAlias, err := Describe(buildTestTree(), "cycle once")
	if err != nil {
		t.Fatalf("Describe by alias: %v", err)
	}
	if byAlias.Path != got.Path {
		t.Fatalf("alias resolved to %q", byAlias.Path)
	}
}

func TestDescribeUnknownCommand(t *testing.T) {
	if _, err := Describe(buildTestTree(), "nope"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
