// Package dispatch runs a batch of tool-call requests against the registry.
//
// Calls in a batch run concurrently; results are returned in request order. Unknown
// tools, undecodable arguments, panics and timeouts all become descriptive tool-result
// messages, so Run never fails.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/logger"
	"github.com/comigor/save-go/pkg/tools"
)

// Lookup resolves a tool by exact name.
type Lookup interface {
	Get(name string) (tools.Tool, bool)
}

// Dispatcher invokes registry tools.
type Dispatcher struct {
	registry    Lookup
	timeout     time.Duration
	maxParallel int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each tool invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMaxParallel caps concurrently running tools in one batch. Zero or less means no cap.
func WithMaxParallel(n int) Option {
	return func(d *Dispatcher) { d.maxParallel = n }
}

// New creates a Dispatcher.
func New(registry Lookup, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes calls and returns one tool-result message per call, in call order.
func (d *Dispatcher) Run(ctx context.Context, calls []conversation.ToolCall) []conversation.Message {
	results := make([]conversation.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if d.maxParallel > 0 {
		g.SetLimit(d.maxParallel)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.invoke(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, call conversation.ToolCall) (msg conversation.Message) {
	log := logger.For("dispatch").With("tool", call.Name, "call_id", call.ID)

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		log.Warn("unknown tool requested")
		return conversation.ToolResult(call.Name, call.ID,
			fmt.Sprintf("Error: tool %q is not available. Use one of the declared tools.", call.Name))
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			log.Warn("could not decode tool arguments", "error", err)
			return conversation.ToolResult(call.Name, call.ID,
				fmt.Sprintf("Error: could not parse arguments for tool %s: %v", call.Name, err))
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("tool panicked", "panic", r)
			msg = conversation.ToolResult(call.Name, call.ID, fmt.Sprintf("Error: tool %s failed: %v", call.Name, r))
		}
	}()

	start := time.Now()
	res := tool.Invoke(ctx, args)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && res.Text == "" {
		res.Text = fmt.Sprintf("Error: tool %s timed out", call.Name)
	}
	log.Debug("tool finished", "duration", time.Since(start), "match", res.Match)

	msg = conversation.ToolResult(call.Name, call.ID, res.Text)
	msg.Authoritative = tool.Authoritative && res.Match
	msg.Product = res.Product
	return msg
}
