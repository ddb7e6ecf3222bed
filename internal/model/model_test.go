package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourcePathHelpers(t *testing.T) {
	root := Resource{ID: "f1", Path: "a.txt", Kind: KindFile}
	nested := Resource{ID: "f2", Path: "docs/sub/deep.txt", Kind: KindFile}
	dir := Resource{ID: "d1", Path: "docs", Kind: KindDirectory}

	assert.Equal(t, "a.txt", root.Name())
	assert.Equal(t, "", root.ParentPath())
	assert.Equal(t, "deep.txt", nested.Name())
	assert.Equal(t, "docs/sub", nested.ParentPath())
	assert.False(t, root.IsDir())
	assert.True(t, dir.IsDir())
}

func TestIsDirectChild(t *testing.T) {
	assert.True(t, IsDirectChild("docs", "docs/report.pdf"))
	assert.False(t, IsDirectChild("docs", "docs/sub/deep.txt"))
	assert.False(t, IsDirectChild("docs", "docs"))
	assert.False(t, IsDirectChild("docs", "documents/report.pdf"))
	assert.False(t, IsDirectChild("docs", "other.txt"))
}

func TestIsDescendant(t *testing.T) {
	assert.True(t, IsDescendant("docs", "docs/report.pdf"))
	assert.True(t, IsDescendant("docs", "docs/sub/deep.txt"))
	assert.False(t, IsDescendant("docs", "docs"))
	assert.False(t, IsDescendant("docs", "documents/x"))
}

func TestTempKBID(t *testing.T) {
	assert.True(t, IsTempKBID(TempKBPrefix+"abc"))
	assert.False(t, IsTempKBID("kb-123"))
	assert.False(t, IsTempKBID(""))
}

func TestIndexStatusTransient(t *testing.T) {
	assert.True(t, StatusPending.Transient())
	assert.True(t, StatusPendingDelete.Transient())
	assert.False(t, StatusIndexed.Transient())
	assert.False(t, StatusError.Transient())
	assert.False(t, StatusNone.Transient())
}

func TestSyncStateString(t *testing.T) {
	assert.Equal(t, "idle", SyncIdle.String())
	assert.Equal(t, "pending", SyncPending.String())
	assert.Equal(t, "synced", SyncSynced.String())
}
