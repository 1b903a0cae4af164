package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ZerologLogger writes leveled JSON lines through zerolog.
type ZerologLogger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// NewZerologLogger creates a logger writing JSON lines to w. If w is an
// io.Closer it is closed by Close.
func NewZerologLogger(w io.Writer, component string) *ZerologLogger {
	ctx := zerolog.New(w).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	z := &ZerologLogger{zl: ctx.Logger()}
	if c, ok := w.(io.Closer); ok {
		z.closer = c
	}
	return z
}

// Info logs at info level.
func (z *ZerologLogger) Info(format string, args ...interface{}) {
	z.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warning logs at warn level.
func (z *ZerologLogger) Warning(format string, args ...interface{}) {
	z.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs at error level.
func (z *ZerologLogger) Error(format string, args ...interface{}) {
	z.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Close closes the underlying writer when it owns one.
func (z *ZerologLogger) Close() error {
	if z.closer == nil {
		return nil
	}
	c := z.closer
	z.closer = nil
	return c.Close()
}

var _ Logger = (*ZerologLogger)(nil)
