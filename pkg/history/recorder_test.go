package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-inventory/pkg/log"
)

const countPath = "10341/0/26342"

func openRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func valueEvent(v int64) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		SessionID: "s1",
		Direction: log.DirectionOut,
		Layer:     log.LayerResource,
		Category:  log.CategoryNotification,
		Notification: &log.NotificationEvent{
			Path:  countPath,
			Value: v,
		},
	}
}

func statusEvent(path, status string) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		SessionID:    "s1",
		Direction:    log.DirectionIn,
		Layer:        log.LayerClient,
		Category:     log.CategoryNotification,
		Notification: &log.NotificationEvent{Path: path, Status: status},
	}
}

func TestRecorder_Values(t *testing.T) {
	r := openRecorder(t)

	for _, v := range []int64{20, 19, 18} {
		r.Log(valueEvent(v))
	}

	recs, err := r.Values(countPath, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "18", recs[0].Value)
	assert.Equal(t, "19", recs[1].Value)
	assert.Equal(t, "s1", recs[0].SessionID)
	assert.False(t, recs[0].Time.IsZero())

	all, err := r.Values(countPath, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := r.Values("10341/0/26343", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecorder_StatusCounts(t *testing.T) {
	r := openRecorder(t)

	r.Log(statusEvent(countPath, "DELIVERED"))
	r.Log(statusEvent(countPath, "DELIVERED"))
	r.Log(statusEvent(countPath, "SEND_FAILED"))
	r.Log(statusEvent("10341/0/26343", "DELIVERED"))

	all, err := r.StatusCounts("")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DELIVERED": 3, "SEND_FAILED": 1}, all)

	count, err := r.StatusCounts(countPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DELIVERED": 2, "SEND_FAILED": 1}, count)
}

func TestRecorder_StatesAndErrors(t *testing.T) {
	r := openRecorder(t)

	r.Log(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			NewState: "REGISTERING",
			Reason:   "register called",
		},
	})
	r.Log(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: "REGISTERING",
			NewState: "REGISTERED",
		},
	})
	code := 12
	r.Log(log.Event{
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: log.LayerClient, Message: "ConnectDnsResolvingFailed", Code: &code},
	})

	// Message events have no table.
	r.Log(log.Event{Category: log.CategoryMessage, Message: &log.MessageEvent{Path: countPath}})

	states, err := r.States(0)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "CLIENT", states[0].Entity)
	assert.Equal(t, "", states[0].OldState)
	assert.Equal(t, "REGISTERING", states[0].NewState)
	assert.Equal(t, "register called", states[0].Reason)
	assert.Equal(t, "REGISTERED", states[1].NewState)

	last, err := r.States(1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "REGISTERED", last[0].NewState)

	n, err := r.ErrorCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, r.Failures())
}

func TestRecorder_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	r, err := Open(path, nil)
	require.NoError(t, err)
	r.Log(valueEvent(7))
	require.NoError(t, r.Close())

	r, err = Open(path, nil)
	require.NoError(t, err)
	defer r.Close()

	recs, err := r.Values(countPath, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].Value)
}

func TestRecorder_WriteAfterCloseCountsFailure(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r.Log(valueEvent(1))
	assert.Equal(t, int64(1), r.Failures())
}
