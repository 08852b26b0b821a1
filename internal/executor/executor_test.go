//go:build unix

package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletopforge/component-extractor/internal/config"
	"github.com/tabletopforge/component-extractor/internal/observability"
)

func newTestExecutor(t *testing.T, maxConcurrent int) *Executor {
	t.Helper()
	return New(config.ExecutorConfig{
		AllowedCommands: []string{"sleep", "echo", "true", "false"},
		MaxConcurrent:   maxConcurrent,
		DefaultTimeout:  10 * time.Second,
	}, observability.Nop())
}

func TestExecute_DisallowedCommand(t *testing.T) {
	e := newTestExecutor(t, 2)

	_, err := e.Execute(context.Background(), Invocation{Command: "rm", Args: []string{"-rf", "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandNotAllowed)
}

func TestExecute_Success(t *testing.T) {
	e := newTestExecutor(t, 2)

	res, err := e.Execute(context.Background(), Invocation{
		Command: "echo",
		Args:    []string{"hello"},
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
}

func TestExecute_NonZeroExit(t *testing.T) {
	e := newTestExecutor(t, 2)

	_, err := e.Execute(context.Background(), Invocation{Command: "false", WorkDir: t.TempDir()})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.True(t, IsToolFailure(err))
}

func TestExecute_TimeoutKillsProcess(t *testing.T) {
	e := newTestExecutor(t, 2)

	start := time.Now()
	_, err := e.Execute(context.Background(), Invocation{
		Command: "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
		WorkDir: t.TempDir(),
	})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, elapsed, 500*time.Millisecond, "kill must happen close to the configured timeout")
	assert.True(t, IsToolFailure(err))

	// Slot released: an immediate follow-up run must not block.
	res, err := e.Execute(context.Background(), Invocation{Command: "true", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecute_ConcurrencyCeiling(t *testing.T) {
	const ceiling = 3
	e := newTestExecutor(t, ceiling)

	done := make(chan struct{})
	var peak atomic.Int64
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if r := e.Running(); r > peak.Load() {
					peak.Store(r)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), Invocation{
				Command: "sleep",
				Args:    []string{"0.2"},
				WorkDir: t.TempDir(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(done)

	assert.LessOrEqual(t, peak.Load(), int64(ceiling), "running processes must never exceed the ceiling")
}

func TestExecute_FIFOFairness(t *testing.T) {
	e := newTestExecutor(t, 1)

	var order []int
	var mu sync.Mutex
	record := func(id int) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Execute(context.Background(), Invocation{
			Command: "sleep", Args: []string{"0.3"}, WorkDir: t.TempDir(),
		})
	}()
	time.Sleep(50 * time.Millisecond) // slot now occupied

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		id := i
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), Invocation{
				Command: "echo", Args: []string{"x"}, WorkDir: t.TempDir(),
			})
			assert.NoError(t, err)
			record(id)
		}()
		time.Sleep(50 * time.Millisecond) // enforce arrival order
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order, "waiters must be served in arrival order")
}

func TestSanitizeArgs(t *testing.T) {
	e := newTestExecutor(t, 1)
	root := t.TempDir()

	t.Run("strips shell metacharacters", func(t *testing.T) {
		args, err := e.sanitizeArgs(Invocation{Args: []string{"-r", "300;rm"}, WorkDir: root})
		require.NoError(t, err)
		assert.Equal(t, []string{"-r", "300rm"}, args)
	})

	t.Run("rejects pure metacharacter argument", func(t *testing.T) {
		_, err := e.sanitizeArgs(Invocation{Args: []string{"&&"}, WorkDir: root})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects path escape", func(t *testing.T) {
		_, err := e.sanitizeArgs(Invocation{Args: []string{"../../etc/passwd"}, WorkDir: root})
		assert.ErrorIs(t, err, ErrPathNotAllowed)
	})

	t.Run("rejects absolute path outside root", func(t *testing.T) {
		_, err := e.sanitizeArgs(Invocation{Args: []string{"/etc/passwd"}, WorkDir: root})
		assert.ErrorIs(t, err, ErrPathNotAllowed)
	})

	t.Run("accepts path under root", func(t *testing.T) {
		args, err := e.sanitizeArgs(Invocation{Args: []string{"./out/page"}, WorkDir: root})
		require.NoError(t, err)
		assert.Equal(t, []string{"./out/page"}, args)
	})
}

func TestAvailable(t *testing.T) {
	e := newTestExecutor(t, 1)

	assert.True(t, e.Available("echo"))
	assert.False(t, e.Available("rm"), "not allowlisted")
	assert.False(t, e.Available("definitely-not-a-real-tool-xyz"))
}

func TestExecute_ContextCancelledWhileWaiting(t *testing.T) {
	e := newTestExecutor(t, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = e.Execute(context.Background(), Invocation{
			Command: "sleep", Args: []string{"0.5"}, WorkDir: t.TempDir(),
		})
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, Invocation{Command: "echo", WorkDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	wg.Wait()
}
