package radiuslog

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Scoped buffers every log line written during a single request or
// handler invocation, then flushes them as one record at the most
// verbose level enabled on the package-level logger. This keeps a busy
// server's interleaved goroutines from scrambling each other's traces
// in the shared output stream.
type Scoped struct {
	L   *zap.SugaredLogger
	buf bytes.Buffer
}

// NewScoped creates a buffered logger using the same encoder
// configuration as the package-level logger.
func NewScoped() *Scoped {
	Init(nil)
	s := &Scoped{}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(coreCfg.EncoderConfig),
		zapcore.AddSync(&s.buf),
		coreCfg.Level,
	)
	s.L = zap.New(core).Sugar()
	return s
}

// Flush writes the buffered lines as a single record through the
// package-level logger, at the most verbose level it has enabled, and
// resets the buffer.
func (s *Scoped) Flush() {
	text := s.buf.String()
	if text == "" {
		return
	}
	switch {
	case IsDebugEnabled():
		Get().Debugln(text)
	case IsInfoEnabled():
		Get().Infoln(text)
	case IsWarnEnabled():
		Get().Warnln(text)
	case IsErrorEnabled():
		Get().Errorln(text)
	}
	s.buf.Reset()
}
