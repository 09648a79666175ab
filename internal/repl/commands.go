package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/manash/artgen/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	commands := []Command{
		&GenerateCommand{},
		&RecentCommand{},
		&CreationsCommand{},
		&ShowCommand{},
		&ClearCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range commands {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// GenerateCommand runs one full pipeline pass.
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Generate an image and 3D model from a prompt" }
func (c *GenerateCommand) Usage() string       { return "generate <prompt>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	prompt := strings.Join(args, " ")
	sessionID := uuid.New().String()

	fmt.Fprintf(r.out, "Processing session %s...\n", sessionID)

	result := r.runner.Process(ctx, prompt, r.caller, sessionID)
	if !result.Success() {
		return fmt.Errorf("pipeline failed: %s", result.Err)
	}

	fmt.Fprintf(r.out, "Expanded: %s\n", result.Prompt.ExpandedPrompt)
	fmt.Fprintf(r.out, "Image: %s%s\n", result.ImagePath, fileSize(result.ImagePath))
	fmt.Fprintf(r.out, "Model: %s%s\n", result.ModelPath, fileSize(result.ModelPath))
	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", humanize.Bytes(uint64(info.Size())))
}

// RecentCommand lists recent session-tier breadcrumbs.
type RecentCommand struct{}

func (c *RecentCommand) Name() string        { return "recent" }
func (c *RecentCommand) Aliases() []string   { return []string{"r"} }
func (c *RecentCommand) Description() string { return "List recent session records" }
func (c *RecentCommand) Usage() string       { return "recent [n]" }

func (c *RecentCommand) Execute(_ context.Context, r *REPL, args []string) error {
	n := 5
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		n = parsed
	}

	records := r.memory.ListRecentSessions(n)
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No session records yet.")
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(r.out, "%s  %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Key)
	}
	return nil
}

// CreationsCommand lists completed creations from the persistent tier.
type CreationsCommand struct{}

func (c *CreationsCommand) Name() string        { return "creations" }
func (c *CreationsCommand) Aliases() []string   { return []string{"ls"} }
func (c *CreationsCommand) Description() string { return "List completed creations" }
func (c *CreationsCommand) Usage() string       { return "creations [n]" }

func (c *CreationsCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	n := 10
	if len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		n = parsed
	}

	entries, err := r.memory.ListRecentPersistent(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to list creations: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No creations yet.")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintf(r.out, "%s  %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Key)
	}
	return nil
}

// ShowCommand dumps one creation record as JSON.
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return nil }
func (c *ShowCommand) Description() string { return "Show a creation record" }
func (c *ShowCommand) Usage() string       { return "show <session-id>" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	var record models.CreationRecord
	if err := r.memory.GetPersistentInto(ctx, models.CreationKey(args[0]), &record); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, string(data))
	return nil
}

// ClearCommand empties the session tier.
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return nil }
func (c *ClearCommand) Description() string { return "Clear session records" }
func (c *ClearCommand) Usage() string       { return "clear" }

func (c *ClearCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.memory.ClearSession()
	fmt.Fprintln(r.out, "Session records cleared.")
	return nil
}

// HelpCommand lists available commands.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"h", "?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	seen := make(map[string]Command)
	for _, cmd := range r.commands {
		seen[cmd.Name()] = cmd
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(r.out, "Available commands:")
	for _, name := range names {
		cmd := seen[name]
		fmt.Fprintf(r.out, "  %-24s %s\n", cmd.Usage(), cmd.Description())
	}
	return nil
}

// QuitCommand exits the REPL.
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.Stop()
	fmt.Fprintln(r.out, "Bye.")
	return nil
}
