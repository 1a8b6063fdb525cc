package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-inventory/pkg/model"
)

var countAddr = model.NewAddress(10341, 0, 26342)

func TestTracker_TerminalRetiresInFlight(t *testing.T) {
	tr := NewTracker()

	tr.Begin(countAddr)
	tr.Begin(countAddr)
	assert.Equal(t, 2, tr.Stats(countAddr).InFlight)

	tr.Report(countAddr, model.StatusDelivered)
	st := tr.Stats(countAddr)
	assert.Equal(t, 1, st.InFlight)
	assert.Equal(t, model.StatusDelivered, st.Last)
	assert.Equal(t, 1, st.Counts[model.StatusDelivered])

	tr.Report(countAddr, model.StatusSendFailed)
	st = tr.Stats(countAddr)
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, 2, st.Terminal())
}

func TestTracker_InFlightNeverNegative(t *testing.T) {
	tr := NewTracker()
	tr.Report(countAddr, model.StatusSent)
	tr.Report(countAddr, model.StatusSent)
	assert.Equal(t, 0, tr.Stats(countAddr).InFlight)
}

func TestTracker_SubscriptionIndependentOfValues(t *testing.T) {
	tr := NewTracker()

	tr.Report(countAddr, model.StatusSubscribed)
	st := tr.Stats(countAddr)
	assert.True(t, st.Observed)
	assert.Equal(t, 0, st.Terminal())
	assert.Equal(t, 0, st.InFlight)

	tr.Report(countAddr, model.StatusUnsubscribed)
	assert.False(t, tr.Stats(countAddr).Observed)
}

func TestTracker_OverlappingNotifications(t *testing.T) {
	tr := NewTracker()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		tr.Begin(countAddr)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Report(countAddr, model.StatusDelivered)
		}()
	}
	wg.Wait()

	st := tr.Stats(countAddr)
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, n, st.Counts[model.StatusDelivered])
}

func TestTracker_StatsIsSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Report(countAddr, model.StatusSent)

	st := tr.Stats(countAddr)
	st.Counts[model.StatusSent] = 99

	assert.Equal(t, 1, tr.Stats(countAddr).Counts[model.StatusSent])
}

func TestTracker_Addresses(t *testing.T) {
	tr := NewTracker()
	tr.Report(model.NewAddress(10341, 0, 26343), model.StatusSent)
	tr.Report(model.NewAddress(10341, 0, 26342), model.StatusSent)
	tr.Report(model.NewAddress(3201, 0, 5853), model.StatusSubscribed)

	got := tr.Addresses()
	require.Len(t, got, 3)
	assert.Equal(t, "3201/0/5853", got[0].String())
	assert.Equal(t, "10341/0/26342", got[1].String())
	assert.Equal(t, "10341/0/26343", got[2].String())

	assert.Empty(t, NewTracker().Stats(countAddr).Counts)
}

func TestStatusLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tree := model.NewTree()
	r := tree.MustAdd(model.ResourceSpec{
		Address:        countAddr,
		Type:           model.DataTypeInteger,
		Access:         model.OpGet,
		Observable:     true,
		OnNotifyStatus: StatusLogger(logger),
	})

	r.ReportStatus(model.StatusDelivered)
	r.ReportStatus(model.StatusResendQueueFull)

	out := buf.String()
	assert.Contains(t, out, "Notification delivered")
	assert.Contains(t, out, "resource=10341/0/26342")
	assert.Contains(t, out, "level=WARN")
	assert.Equal(t, 2, strings.Count(out, "Notification callback"))

	// nil logger is a no-op.
	StatusLogger(nil)(r, model.StatusSent)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "subscription removed", Describe(model.StatusUnsubscribed))
	assert.Equal(t, "Notification sending failed", Describe(model.StatusSendFailed))
	assert.Equal(t, "unknown notification status", Describe(model.NotifyStatus(0)))
}
