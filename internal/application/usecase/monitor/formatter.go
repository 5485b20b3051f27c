package monitor

import (
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiCyan     = "\033[36m"
	ansiDim      = "\033[2m"
	ansiReverse  = "\033[7m"
	ansiClearEOL = "\033[K"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct{}

func NewFormatter() *Formatter {
	return &Formatter{}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

func (f *Formatter) Render(st StateSnapshot, mode RenderMode) string {
	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[PW] ", ansiDim))
	sb.WriteString(connIndicator(st.Conn))
	sb.WriteString(" ")

	if st.Instrument.IsZero() {
		sb.WriteString(colorize("no instruments", ansiDim))
		if mode == RenderLive {
			sb.WriteString(ansiClearEOL)
		}
		return sb.String()
	}

	sb.WriteString(st.Instrument.String())
	sb.WriteString(" ")
	sb.WriteString(f.price(st))

	if st.HasChange {
		sb.WriteString(" ")
		sb.WriteString(formatChange(st.Change))
	}
	if line := Sparkline(st.Closes); line != "" {
		sb.WriteString(" ")
		sb.WriteString(colorize(line, ansiCyan))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}

func (f *Formatter) price(st StateSnapshot) string {
	if st.Stale {
		return colorize("reconnecting…", ansiDim)
	}
	if !st.Price.HasValue {
		if st.Conn == domain.Connecting {
			return colorize("connecting…", ansiDim)
		}
		return colorize("--", ansiDim)
	}

	col := ansiYellow
	switch st.Price.Direction {
	case domain.DirectionUp:
		col = ansiGreen
	case domain.DirectionDown:
		col = ansiRed
	}
	return colorize(st.Price.Price.String(), col)
}

// RenderAlert formats one fired alert as an event line.
func (f *Formatter) RenderAlert(ev domain.AlertFired) string {
	dir := "↑"
	if ev.Price.LessThan(ev.Previous) {
		dir = "↓"
	}

	var sb strings.Builder
	sb.WriteString("ALERT ")
	sb.WriteString(ev.Alert.Instrument.String())
	sb.WriteString(" ")
	sb.WriteString(dir)
	sb.WriteString(" ")
	sb.WriteString(ev.Alert.Target.String())
	sb.WriteString(" (")
	sb.WriteString(ev.Previous.String())
	sb.WriteString(" → ")
	sb.WriteString(ev.Price.String())
	sb.WriteString(", ")
	sb.WriteString(string(ev.Source))
	if ev.Alert.Persistent {
		sb.WriteString(", persistent")
	}
	sb.WriteString(")")

	line := sb.String()
	if ev.Alert.Notify.Flash {
		return colorize(line, ansiReverse)
	}
	return colorize(line, ansiYellow)
}

func connIndicator(c domain.ConnectionState) string {
	switch c {
	case domain.Connected:
		return colorize("●", ansiGreen)
	case domain.Connecting, domain.Reconnecting:
		return colorize("●", ansiYellow)
	default:
		return colorize("●", ansiRed)
	}
}

func formatChange(pct decimal.Decimal) string {
	s := pct.StringFixed(2) + "%"
	switch pct.Sign() {
	case 1:
		return colorize("+"+s, ansiGreen)
	case -1:
		return colorize(s, ansiRed)
	default:
		return colorize(s, ansiYellow)
	}
}

// Sparkline maps closes onto eight block heights between their min and max.
func Sparkline(closes []decimal.Decimal) string {
	if len(closes) == 0 {
		return ""
	}
	lo, hi := closes[0], closes[0]
	for _, c := range closes[1:] {
		lo = decimal.Min(lo, c)
		hi = decimal.Max(hi, c)
	}
	span := hi.Sub(lo)
	top := int64(len(sparkBlocks) - 1)

	out := make([]rune, 0, len(closes))
	for _, c := range closes {
		if span.IsZero() {
			out = append(out, sparkBlocks[len(sparkBlocks)/2])
			continue
		}
		i := c.Sub(lo).Mul(decimal.NewFromInt(top)).Div(span).Round(0).IntPart()
		out = append(out, sparkBlocks[i])
	}
	return string(out)
}
