package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/trade-sync-service/internal/broker"
	"github.com/trogers1052/trade-sync-service/internal/kafka"
	"github.com/trogers1052/trade-sync-service/internal/models"
	"github.com/trogers1052/trade-sync-service/internal/reconcile"
)

// ErrSyncInProgress is returned when a run is requested for a connection that
// already has one in flight. At most one run per connection may touch its
// sync cursor at a time.
var ErrSyncInProgress = errors.New("sync already in progress for connection")

// TradeRepository is the persistence surface the orchestrator needs.
type TradeRepository interface {
	TradeExistsByBrokerID(brokerTradeID string) (bool, error)
	InsertTradeBatch(trades []*models.Trade) error
	RecomputeAccountStats(accountID string) (*models.AccountStats, error)
}

// ConnectionRepository reads connections and records sync outcomes.
type ConnectionRepository interface {
	GetConnectionByID(id int) (*models.Connection, error)
	GetAllConnections() ([]*models.Connection, error)
	UpdateConnectionSyncStatus(id int, lastSyncAt *time.Time, status, syncError string) error
}

// ReplicationNotifier fans newly persisted trades out to the downstream
// copy-trade system.
type ReplicationNotifier interface {
	PublishTradeClosed(ctx context.Context, trade *models.Trade) error
	PublishSyncCompleted(ctx context.Context, data kafka.SyncCompletedEventData) error
}

// StatsCache is the optional cache for recomputed account aggregates.
type StatsCache interface {
	SetAccountStats(ctx context.Context, stats *models.AccountStats, ttl time.Duration) error
	PublishSyncStatus(ctx context.Context, message interface{}) error
}

// FillSourceFactory builds a short-lived fill source for one run from the
// connection's credentials. No client state survives between runs.
type FillSourceFactory func(conn *models.Connection) broker.FillSource

// Config tunes sync windowing.
type Config struct {
	// FirstSyncWindow is how far back the very first sync of a connection
	// reaches.
	FirstSyncWindow time.Duration
	// ResyncOverlap is refetched before the last successful sync on every
	// incremental run, to tolerate late-arriving or out-of-order fills.
	// Redundant refetching is the accepted cost of never missing data.
	ResyncOverlap time.Duration
	// StatsCacheTTL bounds how long cached account stats live.
	StatsCacheTTL time.Duration
}

// RunReport summarizes one sync run.
type RunReport struct {
	RunID             string    `json:"run_id"`
	ConnectionID      int       `json:"connection_id"`
	AccountID         string    `json:"account_id"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	FillsFetched      int       `json:"fills_fetched"`
	SkippedFills      int       `json:"skipped_fills"`
	TradesReconciled  int       `json:"trades_reconciled"`
	TradesInserted    int       `json:"trades_inserted"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	OpenPositions     int       `json:"open_positions"`
	Status            string    `json:"status"`
	Error             string    `json:"error,omitempty"`
}

// Syncer drives the fetch -> normalize -> reconcile -> dedupe -> persist
// pipeline per broker connection and owns the sync cursor bookkeeping.
type Syncer struct {
	trades        TradeRepository
	connections   ConnectionRepository
	notifier      ReplicationNotifier
	cache         StatsCache // may be nil
	newFillSource FillSourceFactory
	normalizer    *broker.Normalizer
	cfg           Config

	mu       sync.Mutex
	inFlight map[int]bool
}

// New creates a Syncer. cache may be nil when Redis is unavailable.
func New(trades TradeRepository, connections ConnectionRepository, notifier ReplicationNotifier, cache StatsCache, factory FillSourceFactory, cfg Config) *Syncer {
	if cfg.FirstSyncWindow <= 0 {
		cfg.FirstSyncWindow = 30 * 24 * time.Hour
	}
	if cfg.ResyncOverlap <= 0 {
		cfg.ResyncOverlap = 7 * 24 * time.Hour
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = time.Hour
	}
	return &Syncer{
		trades:        trades,
		connections:   connections,
		notifier:      notifier,
		cache:         cache,
		newFillSource: factory,
		normalizer:    broker.NewNormalizer(),
		cfg:           cfg,
	}
}

// TriggerSync runs a sync for the connection with the given id.
func (s *Syncer) TriggerSync(ctx context.Context, connectionID int) error {
	conn, err := s.connections.GetConnectionByID(connectionID)
	if err != nil {
		return err
	}
	_, err = s.SyncConnection(ctx, conn)
	return err
}

// SyncAll runs a sync for every registered connection sequentially.
// Connections with a run already in flight are skipped.
func (s *Syncer) SyncAll(ctx context.Context) {
	connections, err := s.connections.GetAllConnections()
	if err != nil {
		log.Printf("Failed to list connections for scheduled sync: %v", err)
		return
	}

	for _, conn := range connections {
		if _, err := s.SyncConnection(ctx, conn); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				log.Printf("Skipping connection %d: run already in flight", conn.ID)
				continue
			}
			log.Printf("Sync failed for connection %d: %v", conn.ID, err)
		}
	}
}

// SyncConnection executes one full sync run for a connection. On success the
// sync cursor advances to the run's window end; on any failure the cursor is
// left untouched and only the status/error fields are updated, so the next
// run retries the same (or a wider) window.
func (s *Syncer) SyncConnection(ctx context.Context, conn *models.Connection) (*RunReport, error) {
	if !s.acquire(conn.ID) {
		return nil, fmt.Errorf("connection %d: %w", conn.ID, ErrSyncInProgress)
	}
	defer s.release(conn.ID)

	started := time.Now()
	report := &RunReport{
		RunID:        uuid.NewString()[:8],
		ConnectionID: conn.ID,
		AccountID:    conn.AccountID,
	}
	report.WindowStart, report.WindowEnd = s.window(conn, started)

	log.Printf("[%s] Syncing connection %d (%s) window %s .. %s",
		report.RunID, conn.ID, conn.AccountID,
		report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339))

	source := s.newFillSource(conn)
	raws, err := source.FetchFills(ctx, conn.AccountID, report.WindowStart, report.WindowEnd)
	if err != nil {
		return report, s.fail(report, started, fmt.Errorf("fetch failed: %w", err))
	}
	report.FillsFetched = len(raws)
	fillsFetchedTotal.Add(float64(len(raws)))

	fills := make([]models.Fill, 0, len(raws))
	for i := range raws {
		fill, err := s.normalizer.NormalizeFill(&raws[i])
		if err != nil {
			// One malformed fill must not block the rest of the account.
			log.Printf("[%s] Skipping malformed fill: %v", report.RunID, err)
			report.SkippedFills++
			continue
		}
		if fill.AccountID == "" {
			fill.AccountID = conn.AccountID
		}
		fills = append(fills, fill)
	}

	result := reconcile.Reconcile(fills)
	report.SkippedFills += result.SkippedFills
	report.TradesReconciled = len(result.Trades)
	report.OpenPositions = len(result.Open)

	inserted, err := s.persist(report, result.Trades)
	if err != nil {
		return report, s.fail(report, started, err)
	}
	report.TradesInserted = len(inserted)

	s.afterPersist(ctx, report, inserted)

	if err := s.connections.UpdateConnectionSyncStatus(conn.ID, &report.WindowEnd, models.SyncStatusSuccess, ""); err != nil {
		return report, s.fail(report, started, fmt.Errorf("failed to record sync success: %w", err))
	}
	report.Status = models.SyncStatusSuccess

	syncRunsTotal.WithLabelValues(models.SyncStatusSuccess).Inc()
	syncDuration.Observe(time.Since(started).Seconds())
	s.publishStatus(ctx, report)

	log.Printf("[%s] Sync done: %d fills, %d trades reconciled, %d inserted, %d duplicates, %d still open",
		report.RunID, report.FillsFetched, report.TradesReconciled,
		report.TradesInserted, report.DuplicatesSkipped, report.OpenPositions)

	return report, nil
}

// window picks the fetch window. A never-synced connection reaches back the
// full first-sync window; otherwise the window starts ResyncOverlap before
// the last recorded success.
func (s *Syncer) window(conn *models.Connection, now time.Time) (time.Time, time.Time) {
	if conn.LastSyncAt == nil {
		return now.Add(-s.cfg.FirstSyncWindow), now
	}
	return conn.LastSyncAt.Add(-s.cfg.ResyncOverlap), now
}

// persist runs the dedup check per trade and batch-inserts whatever is new,
// returning the trades that were actually written.
func (s *Syncer) persist(report *RunReport, trades []*models.Trade) ([]*models.Trade, error) {
	staged := make([]*models.Trade, 0, len(trades))
	for _, trade := range trades {
		exists, err := s.trades.TradeExistsByBrokerID(trade.BrokerTradeID)
		if err != nil {
			return nil, fmt.Errorf("dedup check failed: %w", err)
		}
		if exists {
			report.DuplicatesSkipped++
			duplicatesSkippedTotal.Inc()
			continue
		}
		staged = append(staged, trade)
	}

	if err := s.trades.InsertTradeBatch(staged); err != nil {
		return nil, fmt.Errorf("batch insert failed: %w", err)
	}
	tradesInsertedTotal.Add(float64(len(staged)))
	return staged, nil
}

// afterPersist performs the post-persistence side effects: replication
// notifications, stats recomputation and cache refresh. Failures here are
// logged but never fail the run or roll back persisted trades.
func (s *Syncer) afterPersist(ctx context.Context, report *RunReport, inserted []*models.Trade) {
	for _, trade := range inserted {
		if err := s.notifier.PublishTradeClosed(ctx, trade); err != nil {
			log.Printf("[%s] Replication notify failed for trade %s: %v",
				report.RunID, trade.BrokerTradeID, err)
		}
	}

	if err := s.notifier.PublishSyncCompleted(ctx, kafka.SyncCompletedEventData{
		ConnectionID:      report.ConnectionID,
		AccountID:         report.AccountID,
		FillsFetched:      report.FillsFetched,
		TradesInserted:    report.TradesInserted,
		DuplicatesSkipped: report.DuplicatesSkipped,
	}); err != nil {
		log.Printf("[%s] Sync summary publish failed: %v", report.RunID, err)
	}

	stats, err := s.trades.RecomputeAccountStats(report.AccountID)
	if err != nil {
		log.Printf("[%s] Stats recompute failed for account %s: %v",
			report.RunID, report.AccountID, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.SetAccountStats(ctx, stats, s.cfg.StatsCacheTTL); err != nil {
			log.Printf("[%s] Stats cache update failed: %v", report.RunID, err)
		}
	}
}

func (s *Syncer) fail(report *RunReport, started time.Time, cause error) error {
	report.Status = models.SyncStatusError
	report.Error = cause.Error()

	// lastSyncAt stays nil here: a failed run never advances the cursor.
	if err := s.connections.UpdateConnectionSyncStatus(report.ConnectionID, nil, models.SyncStatusError, cause.Error()); err != nil {
		log.Printf("[%s] Failed to record sync error: %v", report.RunID, err)
	}

	syncRunsTotal.WithLabelValues(models.SyncStatusError).Inc()
	syncDuration.Observe(time.Since(started).Seconds())
	s.publishStatus(context.Background(), report)

	log.Printf("[%s] Sync failed for connection %d: %v", report.RunID, report.ConnectionID, cause)
	return cause
}

func (s *Syncer) publishStatus(ctx context.Context, report *RunReport) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PublishSyncStatus(ctx, report); err != nil {
		log.Printf("[%s] Sync status publish failed: %v", report.RunID, err)
	}
}

func (s *Syncer) acquire(connectionID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		s.inFlight = make(map[int]bool)
	}
	if s.inFlight[connectionID] {
		return false
	}
	s.inFlight[connectionID] = true
	return true
}

func (s *Syncer) release(connectionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, connectionID)
}
