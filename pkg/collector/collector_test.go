package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/config"
	"github.com/robotnikz/sunflow/pkg/inverter"
	"github.com/robotnikz/sunflow/pkg/notify"
	"github.com/robotnikz/sunflow/pkg/storage/storagemock"
	"github.com/robotnikz/sunflow/pkg/types"
)

type nopSender struct{}

func (nopSender) Send(context.Context, string, notify.Embed) error { return nil }

type recordingBroadcaster struct {
	samples []types.PowerSample
}

func (b *recordingBroadcaster) Broadcast(sample types.PowerSample) {
	b.samples = append(b.samples, sample)
}

func newTestCollector(t *testing.T, db *storagemock.MockDatabase, host string) (*Collector, *clock.Mock, *recordingBroadcaster) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local))

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if host != "" {
		c, err := cfg.Get()
		require.NoError(t, err)
		c.InverterHost = host
		require.NoError(t, cfg.Save(c))
	}

	hub := &recordingBroadcaster{}
	c := New(db, cfg, inverter.New(clk), notify.New(nopSender{}, clk), clk, hub)
	return c, clk, hub
}

func TestPollWithoutHostIsNoop(t *testing.T) {
	db := &storagemock.MockDatabase{}
	c, _, hub := newTestCollector(t, db, "")

	require.NoError(t, c.Poll(context.Background()))
	db.AssertNotCalled(t, "InsertPowerSample", mock.Anything, mock.Anything)
	assert.Empty(t, hub.samples)
}

func TestPollRecordsOfflineSampleOnRejectedHost(t *testing.T) {
	db := &storagemock.MockDatabase{}
	// public address fails host validation before any request is made
	c, clk, hub := newTestCollector(t, db, "8.8.8.8")

	db.On("InsertPowerSample", mock.Anything, mock.MatchedBy(func(s types.PowerSample) bool {
		return s.Status == types.StatusOffline && s.Timestamp.Equal(clk.Now())
	})).Return(nil)

	require.NoError(t, c.Poll(context.Background()))
	db.AssertExpectations(t)

	require.Len(t, hub.samples, 1)
	assert.Equal(t, types.StatusOffline, hub.samples[0].Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	db := &storagemock.MockDatabase{}
	c, _, _ := newTestCollector(t, db, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on cancel")
	}
}
