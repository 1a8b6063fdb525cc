// Package interactive provides the interactive command-line interface of
// m2m-client. It plays the management service against the loopback
// connector.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/m2m-inventory/pkg/connector"
	"github.com/mash-protocol/m2m-inventory/pkg/history"
	"github.com/mash-protocol/m2m-inventory/pkg/inspect"
	"github.com/mash-protocol/m2m-inventory/pkg/model"
	"github.com/mash-protocol/m2m-inventory/pkg/node"
	"github.com/mash-protocol/m2m-inventory/pkg/wire"
)

// Console handles interactive mode for m2m-client.
type Console struct {
	node    *node.Node
	lb      *connector.Loopback
	history *history.Recorder
	inspect *inspect.Inspector
	rl      *readline.Instance
}

// New creates a console for n served over lb. rec is optional.
func New(n *node.Node, lb *connector.Loopback, rec *history.Recorder) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "m2m> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return newConsole(n, lb, rec, rl), nil
}

func newConsole(n *node.Node, lb *connector.Loopback, rec *history.Recorder, rl *readline.Instance) *Console {
	return &Console{
		node:    n,
		lb:      lb,
		history: rec,
		inspect: inspect.NewInspector(n.Tree()),
		rl:      rl,
	}
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the command loop. It calls cancel when the user quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	out := c.rl.Stdout()
	printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}

		if !c.execute(ctx, out, line) {
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the loop continues.
func (c *Console) execute(ctx context.Context, out io.Writer, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		printHelp(out)
	case "ls", "tree":
		c.cmdTree(out)
	case "get", "g":
		err = c.cmdRequest(ctx, out, wire.OpGet, args)
	case "put", "p":
		err = c.cmdRequest(ctx, out, wire.OpPut, args)
	case "post":
		err = c.cmdRequest(ctx, out, wire.OpPost, args)
	case "observe", "obs":
		err = c.cmdObserve(out, args, true)
	case "cancel":
		err = c.cmdObserve(out, args, false)
	case "reject":
		err = c.cmdReject(out, args)
	case "error":
		err = c.cmdError(out, args)
	case "status", "s":
		c.cmdStatus(out)
	case "history", "h":
		err = c.cmdHistory(out, args)
	case "unregister":
		err = c.node.Client().Close()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return true
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
M2M Client Commands:
  Resources:
    ls                 - List resources and their values
    get <path>         - GET a resource (address or name)
    put <path> <value> - PUT a resource
    post <path>        - POST (execute) a resource
    observe <path>     - Subscribe to notifications
    cancel <path>      - Cancel a subscription

  Service:
    reject on|off      - Fail notification delivery
    error <code>       - Report a protocol error (name or number)
    unregister         - Close the registration
    status             - Show client and notification status
    history <path> [n] - Show recorded values of a resource

  Other:
    help               - Show this help
    quit               - Exit`)
}

func (c *Console) cmdTree(out io.Writer) {
	fmt.Fprint(out, inspect.FormatTree(c.inspect.InspectTree(), nil))
}

func (c *Console) cmdRequest(ctx context.Context, out io.Writer, op wire.Operation, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <path>", strings.ToLower(op.String()))
	}
	addr, err := c.inspect.Resolve(args[0])
	if err != nil {
		return err
	}

	req := &wire.Request{Operation: op, Path: connector.PathOf(addr)}
	if op == wire.OpPut {
		if len(args) < 2 {
			return fmt.Errorf("usage: put <path> <value>")
		}
		req.Payload = c.payload(addr, strings.Join(args[1:], " "))
	}

	resp, err := c.lb.Request(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s -> %s", op, addr, resp.Status)
	if resp.Payload != nil {
		fmt.Fprintf(out, " %v", resp.Payload)
	}
	fmt.Fprintln(out)
	return nil
}

// payload converts text to the wire type of the resource at addr. Text that
// does not fit an integer resource is sent as is, so the client rejects it.
func (c *Console) payload(addr model.Address, text string) any {
	r, err := c.node.Tree().Lookup(addr)
	if err != nil || r.Type() != model.DataTypeInteger {
		return text
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	return text
}

func (c *Console) cmdObserve(out io.Writer, args []string, subscribe bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: observe|cancel <path>")
	}
	addr, err := c.inspect.Resolve(args[0])
	if err != nil {
		return err
	}
	if subscribe {
		err = c.lb.Observe(addr)
	} else {
		err = c.lb.CancelObserve(addr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Observation of %s updated\n", addr)
	return nil
}

func (c *Console) cmdReject(out io.Writer, args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("usage: reject on|off")
	}
	c.lb.RejectNotifications(args[0] == "on")
	fmt.Fprintf(out, "Notification rejection %s\n", args[0])
	return nil
}

func (c *Console) cmdError(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: error <code>")
	}
	code, err := connector.ParseErrorCode(args[0])
	if err != nil {
		return err
	}
	if err := c.lb.InjectError(code); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reported %s\n", code)
	return nil
}

func (c *Console) cmdStatus(out io.Writer) {
	cl := c.node.Client()
	fmt.Fprintf(out, "State:     %s\n", cl.State())
	if ep := cl.Endpoint(); ep.EndpointName != "" {
		fmt.Fprintf(out, "Endpoint:  %s (%s)\n", ep.EndpointName, ep.InternalEndpointName)
		fmt.Fprintf(out, "Unique ID: %d\n", cl.UniqueID())
	}
	if report, ok := cl.LastError(); ok {
		fmt.Fprintf(out, "Error:     %s (%s) %s\n", report.Name, report.Category, report.Description)
	}

	st := c.node.Simulator().Stats()
	fmt.Fprintf(out, "Inventory: %d cycles, %d sales, %d returns, %d restocks\n",
		st.Cycles, st.Sales, st.Returns, st.Restocks)

	tracker := cl.Tracker()
	addrs := tracker.Addresses()
	if len(addrs) == 0 {
		return
	}
	fmt.Fprintln(out, "Notifications:")
	for _, addr := range addrs {
		s := tracker.Stats(addr)
		statuses := make([]string, 0, len(s.Counts))
		for status, n := range s.Counts {
			statuses = append(statuses, fmt.Sprintf("%s=%d", status, n))
		}
		sort.Strings(statuses)
		fmt.Fprintf(out, "  %-16s in-flight=%d observed=%t %s\n",
			addr, s.InFlight, s.Observed, strings.Join(statuses, " "))
	}
}

func (c *Console) cmdHistory(out io.Writer, args []string) error {
	if c.history == nil {
		return fmt.Errorf("history database not configured")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: history <path> [limit]")
	}
	addr, err := c.inspect.Resolve(args[0])
	if err != nil {
		return err
	}
	limit := 10
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
	}

	values, err := c.history.Values(addr.String(), limit)
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Fprintf(out, "  %s  %s\n", v.Time.Format("15:04:05.000"), v.Value)
	}
	return nil
}
