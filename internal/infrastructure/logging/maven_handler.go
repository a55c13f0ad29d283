package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// SystemKey is the attribute shown in the [SYSTEM] bracket instead of as key=value.
const SystemKey = "system"

// MavenHandler is a slog.Handler that formats logs in Maven-style:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value key=value
type MavenHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	system    string
	useColors bool
	timestamp bool

	// prefix is the dotted group path applied to attrs added later.
	prefix string
	// preformatted holds attrs from WithAttrs, already rendered.
	preformatted []byte
}

// NewMavenHandler creates a new Maven-style handler. Colors are used only
// when w is a terminal.
func NewMavenHandler(w io.Writer, opts *slog.HandlerOptions) *MavenHandler {
	h := &MavenHandler{
		w:         w,
		mu:        &sync.Mutex{},
		level:     slog.LevelInfo,
		useColors: isTerminal(w),
		timestamp: true,
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// isTerminal checks if the writer is a terminal (for color output)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *MavenHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record
func (h *MavenHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer

	h.colored(&buf, levelColor(r.Level), "["+levelString(r.Level)+"]")

	system := h.system
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == SystemKey && h.prefix == "" {
			system = a.Value.String()
		}
		return true
	})
	if system != "" {
		buf.WriteString(" [")
		buf.WriteString(system)
		buf.WriteByte(']')
	}

	if h.timestamp && !r.Time.IsZero() {
		buf.WriteByte(' ')
		h.colored(&buf, colorGray, "["+r.Time.Format(time.TimeOnly)+"]")
	}

	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.Write(h.preformatted)

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == SystemKey && h.prefix == "" {
			return true
		}
		appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *MavenHandler) colored(buf *bytes.Buffer, color, text string) {
	if !h.useColors {
		buf.WriteString(text)
		return
	}
	buf.WriteString(color)
	buf.WriteString(text)
	buf.WriteString(colorReset)
}

// appendAttr renders a as " key=value", flattening groups into dotted keys.
func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if a.Key == "" {
			key = prefix
		}
		for _, ga := range attrs {
			appendAttr(buf, key, ga)
		}
		return
	}

	buf.WriteByte(' ')
	buf.WriteString(key)
	buf.WriteByte('=')
	buf.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// WithAttrs returns a new handler with the given attributes added
func (h *MavenHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	var buf bytes.Buffer
	buf.Write(h.preformatted)
	for _, a := range attrs {
		if a.Key == SystemKey && h.prefix == "" {
			h2.system = a.Value.String()
			continue
		}
		appendAttr(&buf, h.prefix, a)
	}
	h2.preformatted = buf.Bytes()
	return h2
}

// WithGroup returns a new handler whose later attributes are keyed group.key
func (h *MavenHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	if h2.prefix == "" {
		h2.prefix = name
	} else {
		h2.prefix = h2.prefix + "." + name
	}
	return h2
}

func (h *MavenHandler) clone() *MavenHandler {
	h2 := *h
	h2.preformatted = append([]byte(nil), h.preformatted...)
	return &h2
}

// levelColor returns the ANSI color code for a log level (Maven-style)
func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

// levelString returns a short, uppercase string for the log level
func levelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	default:
		return level.String()
	}
}
