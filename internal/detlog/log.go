// Package detlog provides the leveled, human-readable logger used by detjs
// for diagnostic output. Nothing logged here participates in a DV result,
// a gas total, or a tape hash — log lines are allowed to vary across hosts
// without affecting evaluation determinism.
package detlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging level, ordered from most to least severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Logger writes leveled records to an output stream. Records are plain
// text; no color codes are written, even to a terminal.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	level  Lvl
	prefix string
}

// Root is the package-level logger used by callers that don't hold their
// own Logger instance, mirroring the lineage's global root logger.
var Root = New(os.Stderr, LvlInfo, "")

// New creates a Logger writing to w at the given level. If w is a terminal
// (detected via go-isatty), output is wrapped with go-colorable and the
// logger's color flag is set; log does not read that flag, so the output
// carries no color codes either way.
func New(w io.Writer, level Lvl, prefix string) *Logger {
	color := false
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
		color = true
	}
	return &Logger{out: w, color: color, level: level, prefix: prefix}
}

// With returns a copy of the logger scoped with an additional prefix,
// useful for per-component loggers (e.g. "hostcall", "vmprofile").
func (l *Logger) With(component string) *Logger {
	p := component
	if l.prefix != "" {
		p = l.prefix + "." + component
	}
	return &Logger{out: l.out, color: l.color, level: l.level, prefix: p}
}

// SetLevel adjusts the minimum level that will be emitted.
func (l *Logger) SetLevel(level Lvl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level Lvl, msg string, ctx ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	call := stack.Caller(2)
	line := fmt.Sprintf("%s [%s] %s %s", ts, level, callerTag(l.prefix), msg)
	if len(ctx) > 0 {
		line += " " + formatCtx(ctx)
	}
	fmt.Fprintf(l.out, "%s (%n)\n", line, call)
}

func callerTag(prefix string) string {
	if prefix == "" {
		return "detjs"
	}
	return "detjs." + prefix
}

func formatCtx(ctx []interface{}) string {
	out := ""
	for i := 0; i+1 < len(ctx); i += 2 {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v=%v", ctx[i], ctx[i+1])
	}
	return out
}

func (l *Logger) Crit(msg string, ctx ...interface{})  { l.log(LvlCrit, msg, ctx...) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx...) }
func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LvlTrace, msg, ctx...) }
