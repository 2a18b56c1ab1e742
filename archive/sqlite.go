package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dxlistener/config"
	"dxlistener/spot"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps spots in a single WAL-mode table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates the database file and schema if needed.
func OpenSQLite(cfg config.ArchiveConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir: %w", err)
	}
	timeout := time.Duration(cfg.BusyTimeoutMS) * time.Millisecond
	if _, err := checkSQLite(cfg.DBPath, timeout, cfg.AutoDeleteCorruptDB); err != nil {
		return nil, err
	}
	db, err := openSQLiteDB(cfg)
	if err != nil && cfg.AutoDeleteCorruptDB {
		if _, qErr := quarantineSQLite(cfg.DBPath, time.Now().UTC()); qErr == nil {
			db, err = openSQLiteDB(cfg)
		}
	}
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func openSQLiteDB(cfg config.ArchiveConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open db: %w", err)
	}
	sync := strings.ToUpper(strings.TrimSpace(cfg.Synchronous))
	if sync == "" {
		sync = "OFF"
	}
	pragmas := fmt.Sprintf("pragma journal_mode=WAL; pragma synchronous=%s; pragma busy_timeout=%d", sync, cfg.BusyTimeoutMS)
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists spots (
		id integer primary key autoincrement,
		ts integer,
		dx text,
		de text,
		freq real,
		band text,
		mode text,
		report integer,
		has_report integer,
		speed integer,
		comment text,
		grid text,
		source text,
		source_node text,
		is_beacon integer
	);
	create index if not exists idx_spots_ts on spots(ts);
	create index if not exists idx_spots_mode_ts on spots(mode, ts);
	create index if not exists idx_spots_dx_ts on spots(dx, ts);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("archive: schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(batch []*spot.Spot) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`insert into spots(ts, dx, de, freq, band, mode, report, has_report, speed, comment, grid, source, source_node, is_beacon) values(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("archive: prepare: %w", err)
	}
	defer stmt.Close()
	for _, sp := range batch {
		if sp == nil {
			continue
		}
		if _, err := stmt.Exec(
			normalizeUnixNano(sp.Time),
			sp.DXCall,
			sp.DECall,
			sp.Frequency,
			sp.Band,
			sp.Mode,
			sp.Report,
			boolToInt(sp.HasReport),
			sp.Speed,
			sp.Comment,
			sp.Grid,
			string(sp.SourceType),
			sp.SourceNode,
			boolToInt(sp.IsBeacon),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("archive: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(limit int, match func(*spot.Spot) bool) ([]*spot.Spot, error) {
	if limit <= 0 {
		return []*spot.Spot{}, nil
	}
	query := `select ts, dx, de, freq, band, mode, report, has_report, speed, comment, grid, source, source_node, is_beacon from spots order by ts desc, id desc`
	var rows *sql.Rows
	var err error
	if match == nil {
		rows, err = s.db.Query(query+` limit ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	results := make([]*spot.Spot, 0, limit)
	for rows.Next() && len(results) < limit {
		var (
			ts        int64
			sp        spot.Spot
			hasReport int
			source    string
			isBeacon  int
		)
		if err := rows.Scan(&ts, &sp.DXCall, &sp.DECall, &sp.Frequency, &sp.Band, &sp.Mode, &sp.Report,
			&hasReport, &sp.Speed, &sp.Comment, &sp.Grid, &source, &sp.SourceNode, &isBeacon); err != nil {
			return nil, fmt.Errorf("archive: scan recent: %w", err)
		}
		sp.Time = time.Unix(0, ts).UTC()
		sp.HasReport = hasReport > 0
		sp.IsBeacon = isBeacon > 0
		sp.SourceType = spot.SourceType(source)
		if match != nil && !match(&sp) {
			continue
		}
		results = append(results, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate recent: %w", err)
	}
	return results, nil
}

func (s *SQLiteStore) Prune(ftCutoff, defaultCutoff time.Time) (int, error) {
	removed := 0
	res, err := s.db.Exec(`delete from spots where mode in ('FT8','FT4') and ts < ?`, normalizeUnixNano(ftCutoff))
	if err != nil {
		return 0, fmt.Errorf("archive: cleanup FT: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}
	res, err = s.db.Exec(`delete from spots where mode not in ('FT8','FT4') and ts < ?`, normalizeUnixNano(defaultCutoff))
	if err != nil {
		return removed, fmt.Errorf("archive: cleanup default: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}
	return removed, nil
}

// Count returns the number of stored spots.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`select count(*) from spots`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
