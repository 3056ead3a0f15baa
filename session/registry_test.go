package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/adaptive-rag/message"
)

func TestRegistryAppendAndWindow(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, WithWindow(4))

	for i := 0; i < 5; i++ {
		require.NoError(t, reg.AppendTurn(ctx, "t1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	all, err := reg.Memory(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 10)

	window, err := reg.Window(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, "q3", window[0].Content)
	assert.Equal(t, message.RoleAssistant, window[3].Role)

	// storage is never truncated by the window
	all, err = reg.Memory(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRegistryIsolation(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.AppendTurn(ctx, "a", "qa", "aa"))
	require.NoError(t, reg.AppendTurn(ctx, "b", "qb", "ab"))

	msgs, err := reg.Memory(ctx, "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "qa", msgs[0].Content)
}

func TestRegistryResetAndHistory(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)
	require.NoError(t, reg.AppendTurn(ctx, "t", "What is Go?", "A language."))

	history, err := reg.History(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []Exchange{{Question: "What is Go?", Answer: "A language."}}, history)

	next, err := reg.Reset(ctx, "t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(next, ThreadPrefix))
	assert.NotEqual(t, "t", next)

	msgs, err := reg.Memory(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAcquireSerializesThread(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := reg.Acquire(ctx, "shared")
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, reg.locks)
}

func TestAcquireHonoursContext(t *testing.T) {
	reg := NewRegistry(nil)
	release, err := reg.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = reg.Acquire(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := reg.Acquire(context.Background(), "free")
	require.NoError(t, err)
	other()
	other()
}

func TestResetWaitsForTurnInFlight(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil)

	release, err := reg.Acquire(ctx, "t")
	require.NoError(t, err)

	done := make(chan string, 1)
	go func() {
		next, err := reg.Reset(ctx, "t")
		if err != nil {
			t.Error(err)
		}
		done <- next
	}()

	select {
	case <-done:
		t.Fatal("reset finished while a turn held the thread")
	case <-time.After(20 * time.Millisecond):
	}

	// the in-flight turn appends before releasing; reset must drop it
	require.NoError(t, reg.AppendTurn(ctx, "t", "q", "a"))
	release()

	select {
	case next := <-done:
		assert.NotEqual(t, "t", next)
	case <-time.After(time.Second):
		t.Fatal("reset did not finish after release")
	}
	msgs, err := reg.Memory(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, reg.locks)
}

func TestResetHonoursContext(t *testing.T) {
	reg := NewRegistry(nil)
	release, err := reg.Acquire(context.Background(), "busy")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = reg.Reset(ctx, "busy")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireRejectsEmptyThread(t *testing.T) {
	_, err := NewRegistry(nil).Acquire(context.Background(), " ")
	assert.Error(t, err)
}

func TestExchangesSkipsUnanswered(t *testing.T) {
	msgs := []*message.Message{
		message.NewMessage(message.RoleHuman, "q1"),
		message.NewMessage(message.RoleHuman, "q2"),
		message.NewMessage(message.RoleAssistant, "a2"),
	}
	assert.Equal(t, []Exchange{{Question: "q1"}, {Question: "q2", Answer: "a2"}}, Exchanges(msgs))
}
