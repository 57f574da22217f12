package store

import (
	"fmt"
	"time"

	humanize "github.com/dustin/go-humanize"
	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/db"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/spot"
)

const insertSpot = `INSERT INTO dx_spots
	(dx_call, spotter, frequency, band, mode, comment, spot_time, received_at, cluster, session_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQL archives spots in the dx_spots table.
type SQL struct {
	client db.Client
}

// NewSQL creates the schema if needed.
func NewSQL(ctx context.Context, client db.Client) (*SQL, error) {
	s := &SQL{client: client}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQL) ensureSchema(ctx context.Context) error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.client.Dialect() == db.DialectPostgres {
		idColumn = "id BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dx_spots (
			` + idColumn + `,
			dx_call VARCHAR(20) NOT NULL,
			spotter VARCHAR(20) NOT NULL,
			frequency DOUBLE PRECISION NOT NULL,
			band VARCHAR(10) NOT NULL,
			mode VARCHAR(16) NOT NULL,
			comment TEXT,
			spot_time VARCHAR(5),
			received_at BIGINT NOT NULL,
			cluster VARCHAR(100),
			session_id VARCHAR(64)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dx_spots_received_at ON dx_spots (received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dx_spots_dx_call ON dx_spots (dx_call)`,
	}
	for _, q := range stmts {
		if _, err := s.client.GetDB().ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create spot schema: %w", err)
		}
	}
	return nil
}

func (s *SQL) Store(ctx context.Context, sp spot.Spot) error {
	return s.StoreBatch(ctx, []spot.Spot{sp})
}

// StoreBatch inserts spots in a single transaction.
func (s *SQL) StoreBatch(ctx context.Context, spots []spot.Spot) error {
	if len(spots) == 0 {
		return nil
	}
	tx, err := s.client.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, db.Rebind(s.client.Dialect(), insertSpot))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sp := range spots {
		if _, err := stmt.ExecContext(ctx,
			sp.DXCall,
			sp.Spotter,
			sp.FrequencyKHz,
			sp.Band,
			sp.Mode,
			sp.Comment,
			sp.SpottedAt,
			sp.ReceivedAt.UnixMilli(),
			sp.Cluster,
			sp.SessionID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert spot %s: %w", sp.DXCall, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Prune deletes spots received before cutoff and returns how many were removed.
func (s *SQL) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.client.GetDB().ExecContext(ctx,
		db.Rebind(s.client.Dialect(), `DELETE FROM dx_spots WHERE received_at < ?`),
		cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune spots: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of archived spots.
func (s *SQL) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.client.GetDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM dx_spots`).Scan(&n)
	return n, err
}

// Recent returns up to limit spots, newest first.
func (s *SQL) Recent(ctx context.Context, limit int) ([]spot.Spot, error) {
	rows, err := s.client.GetDB().QueryContext(ctx,
		db.Rebind(s.client.Dialect(), `SELECT dx_call, spotter, frequency, band, mode, comment, spot_time, received_at, cluster, session_id
			FROM dx_spots ORDER BY received_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent spots: %w", err)
	}
	defer rows.Close()

	var out []spot.Spot
	for rows.Next() {
		var (
			sp         spot.Spot
			receivedMs int64
		)
		if err := rows.Scan(&sp.DXCall, &sp.Spotter, &sp.FrequencyKHz, &sp.Band, &sp.Mode,
			&sp.Comment, &sp.SpottedAt, &receivedMs, &sp.Cluster, &sp.SessionID); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		sp.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		out = append(out, sp)
	}
	return out, rows.Err()
}

// StartRetention prunes spots older than retention every interval until ctx
// is cancelled.
func (s *SQL) StartRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pruneOnce(ctx, retention)
			}
		}
	}()
}

func (s *SQL) pruneOnce(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	n, err := s.Prune(ctx, cutoff)
	if err != nil {
		logging.Error("spot retention failed: %v", err)
		return
	}
	if n > 0 {
		logging.Info("pruned %s spots received before %s", humanize.Comma(n), humanize.Time(cutoff))
	}
}
