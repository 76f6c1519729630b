package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentsh/saferm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndQuery(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "idx", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendRecord(ctx, types.Record{Time: base, Level: types.LevelInfo, User: "root", LoginUser: "alice", Message: "rm -rf /tmp/x"}))
	require.NoError(t, s.AppendRecord(ctx, types.Record{Time: base.Add(time.Second), Level: types.LevelWarning, User: "root", LoginUser: "alice", Message: "protected: /etc"}))
	require.NoError(t, s.AppendRecord(ctx, types.Record{Time: base.Add(2 * time.Second), Level: types.LevelInfo, User: "bob", Message: "rm notes"}))

	all, err := s.QueryRecords(ctx, types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rm notes", all[0].Message, "newest first by default")
	assert.NotEmpty(t, all[0].ID)

	alice, err := s.QueryRecords(ctx, types.RecordQuery{User: "alice", Asc: true})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "alice", alice[0].LoginUser)
	assert.True(t, alice[0].Time.Equal(base))

	warn, err := s.QueryRecords(ctx, types.RecordQuery{Level: types.LevelWarning})
	require.NoError(t, err)
	require.Len(t, warn, 1)

	text, err := s.QueryRecords(ctx, types.RecordQuery{TextLike: "/tmp"})
	require.NoError(t, err)
	require.Len(t, text, 1)

	since := base.Add(time.Second)
	recent, err := s.QueryRecords(ctx, types.RecordQuery{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
