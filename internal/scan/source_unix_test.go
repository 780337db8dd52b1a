//go:build unix

package scan

import (
	"os"
	"syscall"
	"testing"
	"time"
)

// A blocking descriptor (stdin, an inherited pipe) is not interrupted when
// it is closed, so Close must not wait on the stuck read forever.
func TestLineSourceCloseBlockingDescriptor(t *testing.T) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	r := os.NewFile(uintptr(fds[0]), "pipe-read")
	w := os.NewFile(uintptr(fds[1]), "pipe-write")
	defer w.Close()

	src := NewLineSource(r, WithCloseTimeout(50*time.Millisecond), WithLogger(quietLogger()))

	done := make(chan struct{})
	go func() {
		src.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung on an idle blocking reader")
	}

	start := time.Now()
	if _, status := src.ReadLine(time.Second); status != SourceClosed {
		t.Errorf("status after Close = %v, want %v", status, SourceClosed)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("ReadLine after Close took %v", elapsed)
	}
}
