package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/crossroads/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() State {
	joined := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	return State{
		SessionID: "room-1",
		Status:    models.SessionStatusVoting,
		SceneID:   "S2",
		Round:     3,
		Players: []PlayerRecord{
			{ID: uuid.New(), Token: "t1", Name: "Ada", JoinedAt: joined},
		},
		SavedAt: joined.Add(time.Minute),
	}
}

func TestEncodeDecode(t *testing.T) {
	in := sampleState()

	blob, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.Status, out.Status)
	assert.Equal(t, in.Round, out.Round)
	require.Len(t, out.Players, 1)
	assert.Equal(t, in.Players[0].ID, out.Players[0].ID)
	assert.True(t, in.Players[0].JoinedAt.Equal(out.Players[0].JoinedAt))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not cbor"))
	assert.Error(t, err)

	blob, err := Encode(State{SessionID: "x", Status: "DANCING"})
	require.NoError(t, err)
	_, err = Decode(blob)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	blob, err := Encode(sampleState())
	require.NoError(t, err)

	meta := summarize(blob)
	require.NotNil(t, meta)
	assert.Equal(t, Metadata{Status: "VOTING", SceneID: "S2", Round: 3, Players: 1}, *meta)
	assert.Nil(t, summarize([]byte{0xff}))
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Load(ctx, "room-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, "room-1", []byte("first")))
	require.NoError(t, store.Save(ctx, "room-1", []byte("second")))

	blob, err := store.Load(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), blob)

	require.NoError(t, store.Delete(ctx, "room-1"))
	_, err = store.Load(ctx, "room-1")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	testStore(t, store)
}
