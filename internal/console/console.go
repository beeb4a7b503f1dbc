// Package console is an interactive text front end for a surface.Service.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/danmuck/midikiti/internal/device"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/surface"
)

const prompt = "mk> "

var ErrUsage = errors.New("console: usage")

// Console reads commands from a LineReader and writes results to out.
type Console struct {
	svc   *surface.Service
	lines LineReader

	mu  sync.Mutex
	out io.Writer
}

func New(svc *surface.Service, lines LineReader, out io.Writer) *Console {
	return &Console{svc: svc, lines: lines, out: out}
}

// Run reads and executes commands until quit, end of input or ctx
// cancellation.
func (c *Console) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.lines.Close()
		case <-stop:
		}
	}()

	for {
		line, err := c.lines.ReadLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		quit, err := c.Exec(ctx, line)
		if err != nil {
			c.printf("error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// PrintMessage writes a device text message tagged with the active
// session id; suitable for Service.OnMessage. Frames other than Message
// also carry their command id.
func (c *Console) PrintMessage(id protocol.CommandID, payload []byte) {
	tag := "device"
	if c.svc != nil {
		if sess := c.svc.Current(); sess != nil {
			tag += " " + sess.ID()
		}
	}
	if id != protocol.Message {
		tag += " " + id.String()
	}
	c.printf("[%s] %s\n", tag, strings.TrimRight(string(payload), "\r\n\x00"))
}

// PrintLoaded reports a preference load; suitable for Service.OnPreferences.
func (c *Console) PrintLoaded(iface *device.Interface) {
	c.printf("loaded %s v%d\n", iface, iface.Version())
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Exec runs one command line. quit reports whether the console should stop.
func (c *Console) Exec(ctx context.Context, line string) (quit bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		c.printf("%s", helpText)
		return false, nil
	case "ports":
		return false, c.ports()
	case "connect":
		return false, c.connect(ctx, args)
	case "disconnect":
		return false, c.svc.Disconnect()
	case "layout":
		return false, c.layout()
	case "show":
		return false, c.show(args)
	case "set":
		return false, c.set(args)
	case "push":
		return false, c.withAddress(args, "push <c> <i>", func(ci, ii int) error {
			if err := c.svc.Push(ci, ii); err != nil {
				return err
			}
			c.printf("pushed %d.%d\n", ci, ii)
			return nil
		})
	case "refresh":
		if len(args) == 0 {
			return false, c.svc.RefreshAll()
		}
		return false, c.withAddress(args, "refresh [<c> <i>]", c.svc.Refresh)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

const helpText = `commands:
  ports                       list serial ports
  connect [port]              open a port (first listed when omitted)
  disconnect                  close the current port
  layout                      show commanders and interfaces
  show <c> <i>                show one interface's parameters
  set <c> <i> <field> <value> change a parameter locally
  push <c> <i>                send an interface's parameters to the device
  refresh [<c> <i>]           re-request parameters from the device
  quit                        leave
`

func (c *Console) ports() error {
	ports, err := c.svc.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		c.printf("no serial ports\n")
		return nil
	}
	for _, p := range ports {
		c.printf("%s\n", p)
	}
	return nil
}

func (c *Console) connect(ctx context.Context, args []string) error {
	port := ""
	if len(args) > 0 {
		port = args[0]
	}
	name, err := c.svc.ResolvePort(port)
	if err != nil {
		return err
	}
	sess, err := c.svc.Connect(ctx, name)
	if err != nil {
		return err
	}
	c.printf("connected %s session=%s\n", sess.Port(), sess.ID())
	if derr := sess.DiscoveryErr(); derr != nil {
		c.printf("no device layout: %v\n", derr)
	}
	return nil
}

func (c *Console) layout() error {
	layout, err := c.svc.Layout()
	if err != nil {
		return err
	}
	if layout.Empty() {
		c.printf("no commanders\n")
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tTYPE\tSCHEMA\tLOADED")
	for _, iface := range layout.Interfaces() {
		schemaName := "-"
		if s := iface.Schema(); s != nil {
			schemaName = s.Name
		}
		fmt.Fprintf(w, "%d.%d\t%s\t%s\t%v\n", iface.Commander(), iface.Index(), iface.TypeName(), schemaName, iface.HasValues())
	}
	return w.Flush()
}

func (c *Console) show(args []string) error {
	return c.withAddress(args, "show <c> <i>", func(ci, ii int) error {
		iface, err := c.svc.Interface(ci, ii)
		if err != nil {
			return err
		}
		snap := iface.Snapshot()
		c.mu.Lock()
		defer c.mu.Unlock()
		fmt.Fprintf(c.out, "%s version=%d\n", iface, snap.Version)
		if snap.Schema == "" {
			fmt.Fprintln(c.out, "  no parameters")
			return nil
		}
		w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		for _, f := range snap.Fields {
			value := "-"
			if f.Value != nil {
				value = fmt.Sprint(f.Value)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.Name, f.Label, f.Kind, value)
		}
		return w.Flush()
	})
}

func (c *Console) set(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("%w: set <c> <i> <field> <value>", ErrUsage)
	}
	return c.withAddress(args[:2], "set <c> <i> <field> <value>", func(ci, ii int) error {
		v, err := c.svc.SetValue(ci, ii, args[2], args[3])
		if err != nil {
			return err
		}
		c.printf("%d.%d %s = %s (push to apply)\n", ci, ii, args[2], v)
		return nil
	})
}

func (c *Console) withAddress(args []string, usage string, fn func(c, i int) error) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	ci, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	ii, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	return fn(ci, ii)
}
