package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/trade-sync-service/internal/broker"
	"github.com/trogers1052/trade-sync-service/internal/kafka"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockFillSource struct {
	mu      sync.Mutex
	fills   []broker.RawFill
	err     error
	starts  []time.Time
	ends    []time.Time
	block   chan struct{} // when set, FetchFills waits until closed
	started chan struct{} // when set, closed once FetchFills is entered
}

func (m *mockFillSource) FetchFills(ctx context.Context, accountID string, start, end time.Time) ([]broker.RawFill, error) {
	m.mu.Lock()
	m.starts = append(m.starts, start)
	m.ends = append(m.ends, end)
	started := m.started
	block := m.block
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.fills, nil
}

type mockTradeRepo struct {
	mu        sync.Mutex
	existing  map[string]bool
	batches   [][]*models.Trade
	insertErr error
	existsErr error
	statsErr  error
}

func newMockTradeRepo() *mockTradeRepo {
	return &mockTradeRepo{existing: make(map[string]bool)}
}

func (m *mockTradeRepo) TradeExistsByBrokerID(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.existing[id], nil
}

func (m *mockTradeRepo) InsertTradeBatch(trades []*models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.batches = append(m.batches, trades)
	for _, t := range trades {
		m.existing[t.BrokerTradeID] = true
	}
	return nil
}

func (m *mockTradeRepo) RecomputeAccountStats(accountID string) (*models.AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &models.AccountStats{AccountID: accountID, TradeCount: len(m.existing)}, nil
}

func (m *mockTradeRepo) insertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

type statusUpdate struct {
	ConnectionID int
	LastSyncAt   *time.Time
	Status       string
	Error        string
}

type mockConnRepo struct {
	mu      sync.Mutex
	conns   map[int]*models.Connection
	updates []statusUpdate
}

func newMockConnRepo(conns ...*models.Connection) *mockConnRepo {
	m := &mockConnRepo{conns: make(map[int]*models.Connection)}
	for _, c := range conns {
		m.conns[c.ID] = c
	}
	return m
}

func (m *mockConnRepo) GetConnectionByID(id int) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, errors.New("connection not found")
	}
	return c, nil
}

func (m *mockConnRepo) GetAllConnections() ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Connection
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockConnRepo) UpdateConnectionSyncStatus(id int, lastSyncAt *time.Time, status, syncError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, statusUpdate{id, lastSyncAt, status, syncError})
	return nil
}

func (m *mockConnRepo) lastUpdate() statusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[len(m.updates)-1]
}

type mockNotifier struct {
	mu        sync.Mutex
	trades    []*models.Trade
	completed []kafka.SyncCompletedEventData
	err       error
}

func (m *mockNotifier) PublishTradeClosed(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockNotifier) PublishSyncCompleted(ctx context.Context, data kafka.SyncCompletedEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, data)
	return nil
}

func (m *mockNotifier) tradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func roundTripFills() []broker.RawFill {
	return []broker.RawFill{
		{ID: "f1", Symbol: "AAPL", Side: "buy", Quantity: "10", Price: "100", Timestamp: "1700000000"},
		{ID: "f2", Symbol: "AAPL", Side: "sell", Quantity: "10", Price: "110", Timestamp: "1700000600"},
	}
}

func newTestSyncer(source *mockFillSource, trades *mockTradeRepo, conns *mockConnRepo, notifier *mockNotifier) *Syncer {
	factory := func(conn *models.Connection) broker.FillSource { return source }
	return New(trades, conns, notifier, nil, factory, Config{})
}

func testConn() *models.Connection {
	return &models.Connection{ID: 1, AccountID: "acct-1", Broker: "testbroker"}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSyncConnection_SuccessPipeline(t *testing.T) {
	source := &mockFillSource{fills: roundTripFills()}
	trades := newMockTradeRepo()
	conns := newMockConnRepo()
	notifier := &mockNotifier{}
	s := newTestSyncer(source, trades, conns, notifier)

	report, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)

	assert.Equal(t, 2, report.FillsFetched)
	assert.Equal(t, 1, report.TradesReconciled)
	assert.Equal(t, 1, report.TradesInserted)
	assert.Equal(t, 0, report.DuplicatesSkipped)
	assert.Equal(t, models.SyncStatusSuccess, report.Status)

	assert.Equal(t, 1, trades.insertedCount())
	assert.Equal(t, 1, notifier.tradeCount())
	require.Len(t, notifier.completed, 1)
	assert.Equal(t, "acct-1", notifier.completed[0].AccountID)

	update := conns.lastUpdate()
	assert.Equal(t, models.SyncStatusSuccess, update.Status)
	require.NotNil(t, update.LastSyncAt)
	assert.True(t, update.LastSyncAt.Equal(report.WindowEnd))
}

func TestSyncConnection_RerunSkipsDuplicates(t *testing.T) {
	source := &mockFillSource{fills: roundTripFills()}
	trades := newMockTradeRepo()
	conns := newMockConnRepo()
	notifier := &mockNotifier{}
	s := newTestSyncer(source, trades, conns, notifier)

	_, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)

	// Second run over an overlapping window re-derives the same trade id.
	report, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicatesSkipped)
	assert.Equal(t, 0, report.TradesInserted)
	assert.Equal(t, 1, trades.insertedCount())
	assert.Equal(t, 1, notifier.tradeCount())
}

func TestSyncConnection_FetchErrorLeavesCursorUntouched(t *testing.T) {
	source := &mockFillSource{err: errors.New("connection refused")}
	trades := newMockTradeRepo()
	conns := newMockConnRepo()
	notifier := &mockNotifier{}
	s := newTestSyncer(source, trades, conns, notifier)

	report, err := s.SyncConnection(context.Background(), testConn())
	require.Error(t, err)
	assert.Equal(t, models.SyncStatusError, report.Status)
	assert.Contains(t, report.Error, "connection refused")

	update := conns.lastUpdate()
	assert.Equal(t, models.SyncStatusError, update.Status)
	assert.Nil(t, update.LastSyncAt)
	assert.Contains(t, update.Error, "connection refused")
	assert.Equal(t, 0, trades.insertedCount())
}

func TestSyncConnection_BatchInsertFailure(t *testing.T) {
	source := &mockFillSource{fills: roundTripFills()}
	trades := newMockTradeRepo()
	trades.insertErr = errors.New("constraint violation")
	conns := newMockConnRepo()
	notifier := &mockNotifier{}
	s := newTestSyncer(source, trades, conns, notifier)

	_, err := s.SyncConnection(context.Background(), testConn())
	require.Error(t, err)

	update := conns.lastUpdate()
	assert.Equal(t, models.SyncStatusError, update.Status)
	assert.Nil(t, update.LastSyncAt)
	// Nothing was replicated for a failed batch.
	assert.Equal(t, 0, notifier.tradeCount())
}

func TestSyncConnection_FirstSyncWindow(t *testing.T) {
	source := &mockFillSource{}
	s := newTestSyncer(source, newMockTradeRepo(), newMockConnRepo(), &mockNotifier{})

	report, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)

	require.Len(t, source.starts, 1)
	assert.WithinDuration(t, report.WindowEnd.Add(-30*24*time.Hour), source.starts[0], time.Second)
}

func TestSyncConnection_IncrementalWindowOverlaps(t *testing.T) {
	source := &mockFillSource{}
	s := newTestSyncer(source, newMockTradeRepo(), newMockConnRepo(), &mockNotifier{})

	lastSync := time.Now().Add(-2 * time.Hour)
	conn := testConn()
	conn.LastSyncAt = &lastSync
	conn.LastSyncStatus = models.SyncStatusSuccess

	_, err := s.SyncConnection(context.Background(), conn)
	require.NoError(t, err)

	require.Len(t, source.starts, 1)
	// Refetches from 7 days before the last success, not from the success
	// timestamp itself.
	assert.True(t, source.starts[0].Equal(lastSync.Add(-7*24*time.Hour)),
		"window start = %s", source.starts[0])
}

func TestSyncConnection_OnlyOneRunInFlight(t *testing.T) {
	source := &mockFillSource{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	s := newTestSyncer(source, newMockTradeRepo(), newMockConnRepo(), &mockNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := s.SyncConnection(context.Background(), testConn())
		done <- err
	}()

	<-source.started

	_, err := s.SyncConnection(context.Background(), testConn())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(source.block)
	require.NoError(t, <-done)
}

func TestSyncConnection_MalformedFillSkipped(t *testing.T) {
	fills := roundTripFills()
	fills = append(fills, broker.RawFill{Symbol: "AAPL", Side: "buy", Quantity: "5", Price: "1"}) // no id
	source := &mockFillSource{fills: fills}
	s := newTestSyncer(source, newMockTradeRepo(), newMockConnRepo(), &mockNotifier{})

	report, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedFills)
	assert.Equal(t, 1, report.TradesInserted)
}

func TestSyncConnection_OpenPositionDeferred(t *testing.T) {
	source := &mockFillSource{fills: []broker.RawFill{
		{ID: "f1", Symbol: "TSLA", Side: "buy", Quantity: "5", Price: "200", Timestamp: "1700000000"},
	}}
	trades := newMockTradeRepo()
	s := newTestSyncer(source, trades, newMockConnRepo(), &mockNotifier{})

	report, err := s.SyncConnection(context.Background(), testConn())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OpenPositions)
	assert.Equal(t, 0, report.TradesInserted)
	assert.Equal(t, 0, trades.insertedCount())
	assert.Equal(t, models.SyncStatusSuccess, report.Status)
}

func TestTriggerSync(t *testing.T) {
	source := &mockFillSource{fills: roundTripFills()}
	trades := newMockTradeRepo()
	conns := newMockConnRepo(testConn())
	s := newTestSyncer(source, trades, conns, &mockNotifier{})

	require.NoError(t, s.TriggerSync(context.Background(), 1))
	assert.Equal(t, 1, trades.insertedCount())

	assert.Error(t, s.TriggerSync(context.Background(), 42))
}

func TestSyncAll_ContinuesPastFailures(t *testing.T) {
	good := testConn()
	bad := &models.Connection{ID: 2, AccountID: "acct-2", Broker: "testbroker"}

	goodSource := &mockFillSource{fills: roundTripFills()}
	badSource := &mockFillSource{err: errors.New("auth expired")}
	sources := map[int]*mockFillSource{1: goodSource, 2: badSource}

	trades := newMockTradeRepo()
	conns := newMockConnRepo(good, bad)
	factory := func(conn *models.Connection) broker.FillSource { return sources[conn.ID] }
	s := New(trades, conns, &mockNotifier{}, nil, factory, Config{})

	s.SyncAll(context.Background())

	assert.Equal(t, 1, trades.insertedCount())
	// Both connections got a status update.
	conns.mu.Lock()
	defer conns.mu.Unlock()
	assert.Len(t, conns.updates, 2)
}
