package scan

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultBufferSize is the default number of lines queued between the reader
// goroutine and the consumer. When the queue is full the reader blocks.
const DefaultBufferSize = 1024

// DefaultCloseTimeout bounds how long Close waits for the reader goroutine.
// A blocking descriptor such as os.Stdin is not interrupted by Close, so the
// goroutine may outlive it until the pending read returns.
const DefaultCloseTimeout = time.Second

// ReadStatus tells a consumer what ReadLine produced.
type ReadStatus int

const (
	// LineReady means a line was returned.
	LineReady ReadStatus = iota
	// TimedOut means no line arrived within the timeout; the source is still open.
	TimedOut
	// SourceClosed means the producer ended and every queued line was delivered.
	SourceClosed
)

func (s ReadStatus) String() string {
	switch s {
	case LineReady:
		return "line_ready"
	case TimedOut:
		return "timed_out"
	case SourceClosed:
		return "source_closed"
	default:
		return "unknown"
	}
}

// SourceOption configures a LineSource.
type SourceOption func(*LineSource)

// WithBufferSize sets the queue capacity. Values below 1 are ignored.
func WithBufferSize(n int) SourceOption {
	return func(s *LineSource) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithCloseTimeout sets how long Close waits for the reader goroutine.
func WithCloseTimeout(d time.Duration) SourceOption {
	return func(s *LineSource) {
		s.closeTimeout = d
	}
}

// WithLogger sets the logger used for read errors.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *LineSource) {
		s.logger = logger
	}
}

// LineSource reads a blocking line-oriented producer on its own goroutine and
// hands lines to a single consumer through a FIFO queue.
type LineSource struct {
	r            io.Reader
	reader       *bufio.Reader
	lines        chan string
	done         chan struct{}
	exited       chan struct{}
	bufSize      int
	closeTimeout time.Duration
	logger       *slog.Logger

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

// NewLineSource starts reading r in the background.
func NewLineSource(r io.Reader, opts ...SourceOption) *LineSource {
	s := &LineSource{
		r:            r,
		reader:       bufio.NewReader(r),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		bufSize:      DefaultBufferSize,
		closeTimeout: DefaultCloseTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = make(chan string, s.bufSize)

	go s.readLoop()
	return s
}

func (s *LineSource) readLoop() {
	defer close(s.exited)
	defer close(s.lines)

	for {
		raw, err := s.reader.ReadString('\n')
		if line := strings.TrimRight(raw, "\r\n"); line != "" {
			select {
			case s.lines <- line:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case <-s.done:
					// Read failed because Close closed the producer.
				default:
					s.logger.Error("line source read error", "err", err)
					s.setErr(err)
				}
			}
			return
		}
	}
}

func (s *LineSource) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Err returns the read error that ended the source, or nil after a clean EOF.
func (s *LineSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// ReadLine returns the next line. A timeout <= 0 waits until a line arrives
// or the source closes. After Close it reports SourceClosed even while the
// reader goroutine is still stuck in a read.
func (s *LineSource) ReadLine(timeout time.Duration) (string, ReadStatus) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", SourceClosed
		}
		return line, LineReady
	case <-s.done:
		return "", SourceClosed
	case <-expired:
		return "", TimedOut
	}
}

// Close stops the reader goroutine. An io.Closer producer is closed to
// unblock a pending read, then Close waits up to the close timeout for the
// goroutine to exit.
func (s *LineSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})

	timer := time.NewTimer(s.closeTimeout)
	defer timer.Stop()
	select {
	case <-s.exited:
	case <-timer.C:
		s.logger.Warn("line source reader still blocked after close", "timeout", s.closeTimeout)
	}
	return err
}
