package serial

import (
	"log/slog"
	"os"
)

// LineLogSink buffers outgoing bytes until a line terminator and logs each
// completed line through slog, handy for blargg-style test ROMs that print
// their pass/fail status over the link port.
type LineLogSink struct {
	logger *slog.Logger
	line   []byte
}

func NewLineLogSink(logger *slog.Logger) *LineLogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineLogSink{logger: logger}
}

func (s *LineLogSink) ByteTransferred(b byte) {
	if b == 0 || b == '\n' || b == '\r' {
		if len(s.line) > 0 {
			s.logger.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
		return
	}
	s.line = append(s.line, b)
}

// BufferSink accumulates every transferred byte verbatim, useful for tests
// that want to assert on the raw serial output of a ROM.
type BufferSink struct {
	Bytes []byte
}

func NewBufferSink() *BufferSink { return &BufferSink{} }

func (s *BufferSink) ByteTransferred(b byte) {
	s.Bytes = append(s.Bytes, b)
}

func (s *BufferSink) String() string { return string(s.Bytes) }

// FileSink appends every transferred byte to a file, for capturing long-running
// headless sessions to disk.
type FileSink struct {
	file *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) ByteTransferred(b byte) {
	s.file.Write([]byte{b})
}

func (s *FileSink) Close() error { return s.file.Close() }
