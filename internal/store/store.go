// Package store is the persistence gateway: transfer records, storage
// snapshots, and daily-progress bookkeeping in SQLite. Snapshots are
// append-only so progress history can always be recomputed from what was
// actually observed.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a transfer id has no record. A client error,
// never retried.
var ErrNotFound = errors.New("transfer record not found")

// Status is a transfer's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// CanTransition reports whether moving to the given status respects the
// lifecycle pending -> initiated -> in_progress -> complete|error. Re-marking
// the current status is always allowed.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusPending:
		return to == StatusInitiated || to == StatusError
	case StatusInitiated:
		return to == StatusInProgress || to == StatusComplete || to == StatusError
	case StatusInProgress:
		return to == StatusComplete || to == StatusError
	default:
		// complete and error are terminal
		return false
	}
}

// Transfer is one source-to-destination bulk transfer run.
type Transfer struct {
	ID                 string
	SourcePhotos       int
	SourceVideos       int
	SourceTotalGB      float64
	DestinationAccount string
	Status             Status
	InitiatedAt        time.Time
	CreatedAt          time.Time
}

// Snapshot is one observation of destination storage usage for a transfer.
// Exactly one snapshot per transfer is the baseline; it is captured before
// initiation proceeds, so its timestamp precedes every other snapshot.
type Snapshot struct {
	ID               int64
	TransferID       string
	DayNumber        int
	PhotosGB         float64
	DriveGB          float64
	MailGB           float64
	TotalUsedGB      float64
	TotalAvailableGB float64
	IsBaseline       bool
	CapturedAt       time.Time
}

// DailyProgress is a bookkeeping row recorded on each progress check.
type DailyProgress struct {
	TransferID      string
	DayNumber       int
	PercentComplete float64
	GrowthGB        float64
	Message         string
	RecordedAt      time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens (or creates) the database at path and brings the schema current.
func New(path string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	s := &Store{db: db, log: log}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id TEXT PRIMARY KEY,
			source_photos INTEGER NOT NULL DEFAULT 0,
			source_videos INTEGER NOT NULL DEFAULT 0,
			source_total_gb REAL NOT NULL DEFAULT 0,
			destination_account TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			initiated_at TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transfer_id TEXT NOT NULL,
			day_number INTEGER NOT NULL DEFAULT 0,
			photos_gb REAL NOT NULL DEFAULT 0,
			drive_gb REAL NOT NULL DEFAULT 0,
			mail_gb REAL NOT NULL DEFAULT 0,
			total_used_gb REAL NOT NULL DEFAULT 0,
			total_available_gb REAL NOT NULL DEFAULT 0,
			is_baseline INTEGER NOT NULL DEFAULT 0,
			captured_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_transfer ON snapshots(transfer_id, captured_at)`,
		`CREATE TABLE IF NOT EXISTS daily_progress (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transfer_id TEXT NOT NULL,
			day_number INTEGER NOT NULL,
			percent_complete REAL NOT NULL DEFAULT 0,
			growth_gb REAL NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

// CreateTransfer inserts a new transfer record.
func (s *Store) CreateTransfer(t Transfer) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	_, err := s.db.Exec(
		`INSERT INTO transfers (id, source_photos, source_videos, source_total_gb,
			destination_account, status, initiated_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SourcePhotos, t.SourceVideos, t.SourceTotalGB,
		t.DestinationAccount, string(t.Status),
		formatTime(t.InitiatedAt), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create transfer %s: %w", t.ID, err)
	}
	s.log.Info("transfer record created", zap.String("transfer_id", t.ID))
	return nil
}

// GetTransfer loads a transfer by id.
func (s *Store) GetTransfer(id string) (Transfer, error) {
	row := s.db.QueryRow(
		`SELECT id, source_photos, source_videos, source_total_gb,
			destination_account, status, initiated_at, created_at
		 FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTransfers returns all transfers, newest first.
func (s *Store) ListTransfers() ([]Transfer, error) {
	rows, err := s.db.Query(
		`SELECT id, source_photos, source_videos, source_total_gb,
			destination_account, status, initiated_at, created_at
		 FROM transfers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// MarkTransferStatus moves a transfer along its lifecycle. Skipping states or
// leaving a terminal state is rejected.
func (s *Store) MarkTransferStatus(id string, status Status) error {
	t, err := s.GetTransfer(id)
	if err != nil {
		return err
	}
	if !t.Status.CanTransition(status) {
		return fmt.Errorf("transfer %s: cannot move from %s to %s", id, t.Status, status)
	}
	if t.Status == status {
		return nil
	}
	if _, err := s.db.Exec(`UPDATE transfers SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return fmt.Errorf("mark transfer %s %s: %w", id, status, err)
	}
	s.log.Info("transfer status changed",
		zap.String("transfer_id", id),
		zap.String("from", string(t.Status)),
		zap.String("to", string(status)))
	return nil
}

// AppendSnapshot adds an observation. Snapshots are append-only; a second
// baseline or a non-baseline observation timestamped before the baseline is
// rejected because it would corrupt growth computation.
func (s *Store) AppendSnapshot(snap Snapshot) error {
	if _, err := s.GetTransfer(snap.TransferID); err != nil {
		return err
	}

	baseline, err := s.Baseline(snap.TransferID)
	switch {
	case err == nil:
		if snap.IsBaseline {
			return fmt.Errorf("transfer %s already has a baseline snapshot", snap.TransferID)
		}
		if snap.CapturedAt.Before(baseline.CapturedAt) {
			return fmt.Errorf("transfer %s: snapshot at %s predates baseline %s",
				snap.TransferID, snap.CapturedAt, baseline.CapturedAt)
		}
	case errors.Is(err, sql.ErrNoRows):
		// First snapshot; nothing to check against.
	default:
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO snapshots (transfer_id, day_number, photos_gb, drive_gb, mail_gb,
			total_used_gb, total_available_gb, is_baseline, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.TransferID, snap.DayNumber, snap.PhotosGB, snap.DriveGB, snap.MailGB,
		snap.TotalUsedGB, snap.TotalAvailableGB, boolToInt(snap.IsBaseline),
		formatTime(snap.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("append snapshot for %s: %w", snap.TransferID, err)
	}
	return nil
}

// Baseline returns the transfer's baseline snapshot, or sql.ErrNoRows when
// none has been captured yet.
func (s *Store) Baseline(transferID string) (Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, transfer_id, day_number, photos_gb, drive_gb, mail_gb,
			total_used_gb, total_available_gb, is_baseline, captured_at
		 FROM snapshots WHERE transfer_id = ? AND is_baseline = 1`, transferID)
	return scanSnapshot(row)
}

// LatestSnapshot returns the most recent observation for a transfer.
func (s *Store) LatestSnapshot(transferID string) (Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, transfer_id, day_number, photos_gb, drive_gb, mail_gb,
			total_used_gb, total_available_gb, is_baseline, captured_at
		 FROM snapshots WHERE transfer_id = ?
		 ORDER BY captured_at DESC LIMIT 1`, transferID)
	return scanSnapshot(row)
}

// Snapshots returns all observations for a transfer in capture order.
func (s *Store) Snapshots(transferID string) ([]Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, transfer_id, day_number, photos_gb, drive_gb, mail_gb,
			total_used_gb, total_available_gb, is_baseline, captured_at
		 FROM snapshots WHERE transfer_id = ? ORDER BY captured_at ASC`, transferID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", transferID, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// RecordDailyProgress appends a progress bookkeeping row.
func (s *Store) RecordDailyProgress(p DailyProgress) error {
	_, err := s.db.Exec(
		`INSERT INTO daily_progress (transfer_id, day_number, percent_complete,
			growth_gb, message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.TransferID, p.DayNumber, p.PercentComplete, p.GrowthGB, p.Message,
		formatTime(p.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record daily progress for %s: %w", p.TransferID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (Transfer, error) {
	var t Transfer
	var status, initiatedAt, createdAt string
	err := row.Scan(&t.ID, &t.SourcePhotos, &t.SourceVideos, &t.SourceTotalGB,
		&t.DestinationAccount, &status, &initiatedAt, &createdAt)
	if err != nil {
		return Transfer{}, err
	}
	t.Status = Status(status)
	t.InitiatedAt = parseTime(initiatedAt)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot
	var isBaseline int
	var capturedAt string
	err := row.Scan(&snap.ID, &snap.TransferID, &snap.DayNumber, &snap.PhotosGB,
		&snap.DriveGB, &snap.MailGB, &snap.TotalUsedGB, &snap.TotalAvailableGB,
		&isBaseline, &capturedAt)
	if err != nil {
		return Snapshot{}, err
	}
	snap.IsBaseline = isBaseline != 0
	snap.CapturedAt = parseTime(capturedAt)
	return snap, nil
}

// timeLayout is RFC3339 with a fixed-width fraction so that lexical order in
// SQL matches chronological order (RFC3339Nano trims trailing zeros, which
// breaks that).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
