package agent

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

// stdout/stderr writers routed through go-colorable so ANSI codes still
// render correctly on Windows consoles, matching the debug-console
// treatment gin gives its own request logger (the teacher pulls in
// mattn/go-isatty and mattn/go-colorable transitively for exactly this).
var (
	debugOut = colorable.NewColorable(os.Stdout)
	warnOut  = colorable.NewColorable(os.Stderr)
	isTTY    = isatty.IsTerminal(os.Stdout.Fd())
)

const (
	colorDim    = "\x1b[2m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// agentLogger is the ambient logging surface threaded through the agent,
// errors, and transport controller: emoji-prefixed (🔍 debug, 📡 info, ⚠️
// warn) stdlib `log` lines, the
// same texture as tracekit's logging, with rate-limited "warn once per
// drop" throttling per spec.md §7 for high-frequency conditions (queue
// full, dropped heartbeats).
type agentLogger struct {
	debug       bool
	dropLimiter *rate.Limiter
}

func newAgentLogger(debug bool) *agentLogger {
	return &agentLogger{
		debug:       debug,
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (l *agentLogger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.writeTo(debugOut, colorDim, "🔍", format, args...)
}

func (l *agentLogger) Infof(format string, args ...interface{}) {
	l.writeTo(debugOut, "", "📡", format, args...)
}

func (l *agentLogger) Warnf(format string, args ...interface{}) {
	l.writeTo(warnOut, colorYellow, "⚠️ ", format, args...)
}

// WarnDropped is the rate-limited variant for spec.md §7's "warn once per
// drop" requirement on the send queue and similar hot paths.
func (l *agentLogger) WarnDropped(format string, args ...interface{}) {
	if !l.dropLimiter.Allow() {
		return
	}
	l.Warnf(format, args...)
}

func (l *agentLogger) writeTo(w io.Writer, color, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isTTY && color != "" {
		fmt.Fprintf(w, "%s%s %s%s\n", color, prefix, msg, colorReset)
		return
	}
	log.New(w, "", log.LstdFlags).Printf("%s %s", prefix, msg)
}
