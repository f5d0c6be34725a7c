package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raseed/internal/core"
	"raseed/internal/storage/memory"
)

func newTestLog() *Log {
	l := New(memory.New())
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	l.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	l.newID = func() string {
		n++
		return fmt.Sprintf("q%d", n)
	}
	return l
}

func TestLog_AddAndList(t *testing.T) {
	ctx := context.Background()
	l := newTestLog()

	first, err := l.Add(ctx, "dev", "  how much on coffee?  ", core.OriginText, 0)
	require.NoError(t, err)
	assert.Equal(t, "how much on coffee?", first.Text)
	assert.Equal(t, "q1", first.ID)

	_, err = l.Add(ctx, "dev", "groceries last week", core.OriginVoice, 0.8)
	require.NoError(t, err)

	got, err := l.List(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "groceries last week", got[0].Text)
	assert.Equal(t, core.OriginVoice, got[0].Origin)
	assert.True(t, got[0].Timestamp.After(got[1].Timestamp))
}

func TestLog_RejectsInvalid(t *testing.T) {
	l := newTestLog()
	_, err := l.Add(context.Background(), "dev", "   ", core.OriginText, 0)
	assert.ErrorIs(t, err, core.ErrEmptyQueryText)

	_, err = l.Add(context.Background(), "dev", "hi", core.QueryOrigin("email"), 0)
	assert.ErrorIs(t, err, core.ErrInvalidOrigin)
}

func TestLog_Unbounded(t *testing.T) {
	ctx := context.Background()
	l := newTestLog()
	for i := 0; i < 500; i++ {
		_, err := l.Add(ctx, "dev", fmt.Sprintf("q %d", i), core.OriginText, 0)
		require.NoError(t, err)
	}
	got, err := l.List(ctx, "dev")
	require.NoError(t, err)
	assert.Len(t, got, 500)
}
