package execx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	r := NewRunner()
	res, err := r.Run(context.Background(), Cmd{Argv: []string{"echo", "hello"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want hello", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), Cmd{Argv: []string{"sh", "-c", "echo oops >&2; exit 3"}})
	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if ee.Code != 3 {
		t.Errorf("Code = %d, want 3", ee.Code)
	}
	if !strings.Contains(ee.Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain oops", ee.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner()
	start := time.Now()
	_, err := r.Run(context.Background(), Cmd{
		Argv:    []string{"sleep", "10"},
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, expected prompt termination", elapsed)
	}
}

func TestRunEmptyArgv(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), Cmd{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRunCancellation(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, Cmd{Argv: []string{"sleep", "10"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunShell(t *testing.T) {
	r := NewRunner()
	res, err := r.RunShell(context.Background(), "echo a && echo b", Cmd{})
	if err != nil {
		t.Fatalf("RunShell: %v", err)
	}
	if !strings.Contains(res.Stdout, "a") || !strings.Contains(res.Stdout, "b") {
		t.Errorf("Stdout = %q, want both a and b", res.Stdout)
	}
}

func TestKeySerialization(t *testing.T) {
	r := NewRunner()
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Run(context.Background(), Cmd{
				Argv: []string{"sh", "-c", "sleep 0.05"},
				Key:  "k",
			})
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if len(order) != 4 {
		t.Fatalf("completed %d commands, want 4", len(order))
	}
	// Four 50ms commands under one key run one after another.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("4 keyed commands took %v, want >= 200ms (serialized)", elapsed)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 5}
	n, err := b.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("Write = (%d, %v), want (10, nil)", n, err)
	}
	if got := b.String(); got != "01234" {
		t.Errorf("String() = %q, want %q", got, "01234")
	}
}

func TestRing(t *testing.T) {
	rg := newRing(4)
	rg.Write([]byte("ab"))
	if got := rg.String(); got != "ab" {
		t.Errorf("String() = %q, want ab", got)
	}
	rg.Write([]byte("cdef"))
	if got := rg.String(); got != "cdef" {
		t.Errorf("String() = %q, want cdef (tail of stream)", got)
	}
}

func TestProcLifecycle(t *testing.T) {
	r := NewRunner()
	proc, err := r.StartShell(context.Background(), "echo line1; echo line2; sleep 5", Cmd{})
	if err != nil {
		t.Fatalf("StartShell: %v", err)
	}
	if proc.PID() <= 0 {
		t.Errorf("PID = %d, want > 0", proc.PID())
	}
	time.Sleep(200 * time.Millisecond)
	if !proc.Running() {
		t.Fatal("process should still be running")
	}
	lines := proc.TailLines(10)
	if len(lines) < 2 {
		t.Fatalf("TailLines = %v, want 2 lines", lines)
	}
	proc.Kill(time.Second)
	<-proc.Done()
	if proc.Running() {
		t.Error("process should have exited after Kill")
	}
}
