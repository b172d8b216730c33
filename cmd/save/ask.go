package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/comigor/save-go/internal/agent"
)

var (
	askSession string
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run turns from the terminal; without a message, start an interactive session",
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "Session ID (a new one is generated when empty)")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Print state transitions to stderr")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if askSession == "" {
		askSession = uuid.NewString()
	}

	if len(args) > 0 {
		return ask(ctx, a.agent, strings.Join(args, " "))
	}

	fmt.Fprintf(os.Stderr, "session %s. Type 'exit' to quit.\n", askSession)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			return nil
		}
		if err := ask(ctx, a.agent, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func ask(ctx context.Context, ag *agent.Agent, message string) error {
	var opts []agent.TurnOption
	if askVerbose {
		opts = append(opts, agent.WithProgress(func(e agent.Event) {
			fmt.Fprintf(os.Stderr, "  ↳ %s -> %s (%s)\n", e.From, e.To, e.Trigger)
		}))
	}
	res, err := ag.Process(ctx, askSession, message, opts...)
	if err != nil {
		return err
	}
	fmt.Println(res.Answer)
	return nil
}
