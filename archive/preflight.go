package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// preflightResult reports what checkSQLite found.
type preflightResult struct {
	Healthy        bool
	Quarantined    bool
	QuarantinePath string
}

var sqliteSidecars = []string{"", "-wal", "-shm", "-journal"}

// checkSQLite runs a bounded WAL checkpoint and quick_check on an existing
// archive before it is opened for writing. When either fails and quarantine
// is allowed, the file and its sidecars are renamed to <path>.bad-<ts> so
// startup continues with a fresh database. A missing file is healthy.
func checkSQLite(path string, timeout time.Duration, quarantine bool) (preflightResult, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return preflightResult{Healthy: true}, nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return preflightResult{}, fmt.Errorf("archive: preflight open: %w", err)
	}
	db.SetMaxOpenConns(1)
	checkErr := func() error {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		return quickCheck(ctx, db)
	}()
	db.Close()

	if checkErr == nil {
		return preflightResult{Healthy: true}, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return preflightResult{}, fmt.Errorf("archive: preflight timed out after %s", timeout)
	}
	if !quarantine {
		return preflightResult{}, fmt.Errorf("archive: preflight %s: %w", path, checkErr)
	}
	dest, err := quarantineSQLite(path, time.Now().UTC())
	if err != nil {
		return preflightResult{}, fmt.Errorf("archive: quarantine failed: %w (check: %v)", err, checkErr)
	}
	log.Printf("Archive: preflight failed (%v); quarantined to %s", checkErr, dest)
	return preflightResult{Quarantined: true, QuarantinePath: dest}, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantineSQLite(path string, now time.Time) (string, error) {
	suffix := ".bad-" + now.Format("20060102T150405Z")
	for _, side := range sqliteSidecars {
		src := path + side
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, src+suffix); err != nil {
			return "", err
		}
	}
	return path + suffix, nil
}
