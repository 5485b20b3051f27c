package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/application/usecase/monitor"
	"pricewatch/internal/domain"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

const helpText = "commands: next | prev | use SYM | add SYM | rm SYM | list | " +
	"alert SYM PRICE [persistent] [sound] [flash] | alerts | del ID | arm ID | disarm ID | quit"

// Commands turns text lines into supervisor and alert registry operations.
type Commands struct {
	sup  *monitor.Supervisor
	sink port.Sink
}

func NewCommands(sup *monitor.Supervisor, sink port.Sink) *Commands {
	return &Commands{sup: sup, sink: sink}
}

// Run reads commands from r until EOF, quit or ctx is done.
func (c *Commands) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Warn().Err(err).Msg("command input closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			reply, err := c.Execute(ctx, line)
			if errors.Is(err, ErrQuit) {
				return ErrQuit
			}
			if err != nil {
				reply = "error: " + err.Error()
			}
			if reply != "" {
				_ = c.sink.WriteEvent(time.Now(), reply)
			}
		}
	}
}

// Execute runs one command line and returns the text to show.
func (c *Commands) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "next", "n":
		inst, err := c.sup.Switch(1)
		if err != nil {
			return "", err
		}
		return "watching " + inst.String(), nil

	case "prev", "p":
		inst, err := c.sup.Switch(-1)
		if err != nil {
			return "", err
		}
		return "watching " + inst.String(), nil

	case "use":
		inst, err := oneInstrument(args)
		if err != nil {
			return "", err
		}
		if err := c.sup.SwitchTo(inst); err != nil {
			return "", err
		}
		return "watching " + inst.String(), nil

	case "add":
		inst, err := oneInstrument(args)
		if err != nil {
			return "", err
		}
		added, err := c.sup.AddInstrument(inst)
		if err != nil {
			return "", err
		}
		if !added {
			return inst.String() + " already tracked", nil
		}
		return "added " + inst.String(), nil

	case "rm", "remove":
		inst, err := oneInstrument(args)
		if err != nil {
			return "", err
		}
		if err := c.sup.RemoveInstrument(inst); err != nil {
			return "", err
		}
		return "removed " + inst.String(), nil

	case "list", "ls":
		return c.listInstruments(), nil

	case "alert":
		a, err := ParseAlertArgs(args)
		if err != nil {
			return "", err
		}
		a, err = c.sup.Engine().Add(ctx, a)
		if err != nil {
			return "", err
		}
		return "alert " + a.ID + " " + describeAlert(a), nil

	case "alerts":
		return c.listAlerts(), nil

	case "del", "delete":
		id, err := oneID(args)
		if err != nil {
			return "", err
		}
		if err := c.sup.Engine().Remove(ctx, id); err != nil {
			return "", err
		}
		return "deleted " + id, nil

	case "arm", "disarm":
		id, err := oneID(args)
		if err != nil {
			return "", err
		}
		if err := c.sup.Engine().SetEnabled(ctx, id, cmd == "arm"); err != nil {
			return "", err
		}
		return cmd + "ed " + id, nil

	case "quit", "exit", "q":
		return "", ErrQuit

	case "help", "?":
		return helpText, nil
	}
	return "", fmt.Errorf("unknown command %q (try help)", cmd)
}

func (c *Commands) listInstruments() string {
	items := c.sup.Session().Items()
	if len(items) == 0 {
		return "no instruments"
	}
	idx := c.sup.Session().Index()
	parts := make([]string, len(items))
	for i, it := range items {
		if i == idx {
			parts[i] = "[" + it.String() + "]"
		} else {
			parts[i] = it.String()
		}
	}
	return strings.Join(parts, " ")
}

func (c *Commands) listAlerts() string {
	alerts := c.sup.Engine().List()
	if len(alerts) == 0 {
		return "no alerts"
	}
	var sb strings.Builder
	for i, a := range alerts {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(a.ID)
		sb.WriteString(" ")
		sb.WriteString(describeAlert(a))
	}
	return sb.String()
}

func describeAlert(a domain.Alert) string {
	parts := []string{a.Instrument.String(), a.Target.String()}
	if a.Persistent {
		parts = append(parts, "persistent")
	}
	if a.Notify.Sound {
		parts = append(parts, "sound")
	}
	if a.Notify.Flash {
		parts = append(parts, "flash")
	}
	if !a.Enabled {
		parts = append(parts, "(disarmed)")
	}
	return strings.Join(parts, " ")
}

// ParseAlertArgs parses "SYM PRICE [persistent] [sound] [flash]".
func ParseAlertArgs(args []string) (domain.Alert, error) {
	if len(args) < 2 {
		return domain.Alert{}, errors.New("usage: alert SYM PRICE [persistent] [sound] [flash]")
	}
	target, err := decimal.NewFromString(args[1])
	if err != nil || !target.IsPositive() {
		return domain.Alert{}, fmt.Errorf("invalid price %q", args[1])
	}
	a := domain.Alert{
		Instrument: domain.NewInstrument(args[0]),
		Target:     target,
		Enabled:    true,
	}
	if err := ApplyAlertOptions(&a, args[2:]); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

// ApplyAlertOptions sets the persistent, sound and flash flags named in opts.
func ApplyAlertOptions(a *domain.Alert, opts []string) error {
	for _, o := range opts {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "persistent", "repeat":
			a.Persistent = true
		case "sound":
			a.Notify.Sound = true
		case "flash":
			a.Notify.Flash = true
		case "":
		default:
			return fmt.Errorf("unknown alert option %q", o)
		}
	}
	return nil
}

func oneInstrument(args []string) (domain.Instrument, error) {
	if len(args) != 1 {
		return "", errors.New("expected one instrument")
	}
	inst := domain.NewInstrument(args[0])
	if inst.IsZero() {
		return "", errors.New("expected one instrument")
	}
	return inst, nil
}

func oneID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("expected one alert id")
	}
	return strings.TrimSpace(args[0]), nil
}
