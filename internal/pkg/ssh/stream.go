package ssh

import (
	"bufio"
	"io"
	"iter"
	"strings"
	"sync"
)

const maxLineSize = 1 << 20

// Stream is the combined stdout and stderr of one remote command.
type Stream struct {
	reader io.Reader
	wait   func() (int, error)

	readErr error

	once sync.Once
	code int
	err  error
}

// NewStream wraps r, the command's output, and wait, which blocks until the
// command has exited and returns its exit code.
func NewStream(r io.Reader, wait func() (int, error)) *Stream {
	return &Stream{reader: r, wait: wait}
}

// Lines yields output lines in the order they arrive, without line endings.
// A line longer than maxLineSize is yielded in maxLineSize chunks. Iteration
// ends when the command closes its output or reading fails; see Err.
func (s *Stream) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		scanner := bufio.NewScanner(s.reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		scanner.Split(splitLines)
		for scanner.Scan() {
			if !yield(strings.TrimRight(scanner.Text(), "\r")) {
				return
			}
		}
		s.readErr = scanner.Err()
	}
}

// Err is the error that ended the last Lines iteration early, if any.
func (s *Stream) Err() error {
	return s.readErr
}

func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLineSize {
		return maxLineSize, data[:maxLineSize], nil
	}
	return advance, token, err
}

// Wait discards any unread output and returns the exit code. A non-nil error
// means the command's outcome is unknown, not that it exited non-zero.
func (s *Stream) Wait() (int, error) {
	s.once.Do(func() {
		_, _ = io.Copy(io.Discard, s.reader)
		s.code, s.err = s.wait()
	})
	return s.code, s.err
}
