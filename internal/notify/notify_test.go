package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_DedupByKey(t *testing.T) {
	n := New()
	n.Notify("index-error:kb-1|", LevelError, "indexing failed")
	n.Notify("index-error:kb-1|", LevelError, "indexing failed")
	n.Notify("index-error:kb-1|docs", LevelError, "folder indexing failed")

	msgs := n.Drain()
	require.Len(t, msgs, 2)
	assert.Equal(t, "indexing failed", msgs[0].Message)
	assert.Equal(t, "folder indexing failed", msgs[1].Message)
}

func TestNotifier_DedupSurvivesDrain(t *testing.T) {
	n := New()
	n.Notify("k", LevelError, "boom")
	n.Drain()

	n.Notify("k", LevelError, "boom")
	assert.Empty(t, n.Drain(), "a drained key must not fire again")
}

func TestNotifier_EmptyKeyNeverDeduped(t *testing.T) {
	n := New()
	n.Notify("", LevelInfo, "one")
	n.Notify("", LevelInfo, "two")
	assert.Len(t, n.Drain(), 2)
}

func TestNotifier_ResetForgetsKeys(t *testing.T) {
	n := New()
	n.Notify("k", LevelError, "boom")
	n.Reset()

	assert.Empty(t, n.Drain())
	n.Notify("k", LevelError, "boom again")
	msgs := n.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "boom again", msgs[0].Message)
}
