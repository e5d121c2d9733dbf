package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tinoosan/quip/internal/data"
)

// SQLRepo implements DownloadRepo on database/sql. The same statements run
// on PostgreSQL (pgx) and SQLite (modernc): both accept $N placeholders and
// ON CONFLICT upserts.
type SQLRepo struct {
	db     *sql.DB
	driver string
	hub    watchHub
}

var _ DownloadRepo = (*SQLRepo)(nil)
var _ Pinger = (*SQLRepo)(nil)

const selectColumns = `SELECT id,url,file_name,size,file_size,headers,checksum,bytes_transferred,total_bytes,status,created_at FROM downloads`

func openSQL(driver, dsn string, maxConns int) (*SQLRepo, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &SQLRepo{db: db, driver: driver}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRepo) Close() error { return r.db.Close() }

func (r *SQLRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *SQLRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS downloads (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	file_name TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	file_size BIGINT NOT NULL DEFAULT 0,
	headers TEXT,
	checksum TEXT NOT NULL DEFAULT '',
	bytes_transferred BIGINT NOT NULL DEFAULT 0,
	total_bytes BIGINT NOT NULL DEFAULT 0,
	status INTEGER NOT NULL,
	created_at BIGINT NOT NULL
);
`)
	return err
}

// List implements DownloadReader.List
func (r *SQLRepo) List(ctx context.Context) (data.Downloads, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at ASC, id ASC`)
	if err != nil { return nil, err }
	defer rows.Close()
	out := data.Downloads{}
	for rows.Next() {
		dl, err := scanDownload(rows)
		if err != nil { return nil, err }
		out = append(out, dl)
	}
	return out, rows.Err()
}

// Get implements DownloadReader.Get
func (r *SQLRepo) Get(ctx context.Context, id string) (*data.Download, error) {
	dl, err := scanDownload(r.db.QueryRowContext(ctx, selectColumns+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) { return nil, data.ErrNotFound }
		return nil, err
	}
	return dl, nil
}

// Create implements DownloadWriter.Create
func (r *SQLRepo) Create(ctx context.Context, d *data.Download) error {
	headers, err := encodeHeaders(d.Headers)
	if err != nil { return err }
	res, err := r.db.ExecContext(ctx, `
INSERT INTO downloads (id,url,file_name,size,file_size,headers,checksum,bytes_transferred,total_bytes,status,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING
`, d.ID, d.URL, d.FileName, d.Size, d.FileSize, headers, d.Checksum, d.Progress.BytesTransferred, d.Progress.TotalBytes, int(d.Progress.Status), d.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("create download %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return data.ErrConflict
	}
	r.notify(ctx)
	return nil
}

// Upsert implements DownloadWriter.Upsert. created_at is kept from the first
// insert.
func (r *SQLRepo) Upsert(ctx context.Context, d *data.Download) error {
	headers, err := encodeHeaders(d.Headers)
	if err != nil { return err }
	_, err = r.db.ExecContext(ctx, `
INSERT INTO downloads (id,url,file_name,size,file_size,headers,checksum,bytes_transferred,total_bytes,status,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	url=excluded.url,
	file_name=excluded.file_name,
	size=excluded.size,
	file_size=excluded.file_size,
	headers=excluded.headers,
	checksum=excluded.checksum,
	bytes_transferred=excluded.bytes_transferred,
	total_bytes=excluded.total_bytes,
	status=excluded.status
`, d.ID, d.URL, d.FileName, d.Size, d.FileSize, headers, d.Checksum, d.Progress.BytesTransferred, d.Progress.TotalBytes, int(d.Progress.Status), d.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert download %s: %w", d.ID, err)
	}
	r.notify(ctx)
	return nil
}

// Delete implements DownloadWriter.Delete
func (r *SQLRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE id=$1`, id)
	if err != nil { return err }
	n, _ := res.RowsAffected()
	if n == 0 { return data.ErrNotFound }
	r.notify(ctx)
	return nil
}

// Watch implements DownloadWatcher. Only writes made through this repo are
// observed.
func (r *SQLRepo) Watch(ctx context.Context) (<-chan data.Downloads, error) {
	list, err := r.List(ctx)
	if err != nil { return nil, err }
	return r.hub.subscribe(ctx, list), nil
}

func (r *SQLRepo) notify(ctx context.Context) {
	if !r.hub.active() {
		return
	}
	list, err := r.List(ctx)
	if err != nil {
		return
	}
	r.hub.broadcast(list)
}

// Helpers

type rowScanner interface{ Scan(dest ...any) error }

func scanDownload(rs rowScanner) (*data.Download, error) {
	var (
		dl      data.Download
		headers sql.NullString
		status  int
		created int64
	)
	if err := rs.Scan(&dl.ID, &dl.URL, &dl.FileName, &dl.Size, &dl.FileSize, &headers, &dl.Checksum,
		&dl.Progress.BytesTransferred, &dl.Progress.TotalBytes, &status, &created); err != nil {
		return nil, err
	}
	dl.Progress.Status = data.Status(status)
	dl.CreatedAt = time.Unix(0, created).UTC()
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &dl.Headers); err != nil {
			return nil, fmt.Errorf("decode headers for %s: %w", dl.ID, err)
		}
	}
	return &dl, nil
}

func encodeHeaders(h map[string]string) (any, error) {
	if len(h) == 0 { return nil, nil }
	b, err := json.Marshal(h)
	if err != nil { return nil, err }
	return string(b), nil
}

// Driver names the database/sql driver in use.
func (r *SQLRepo) Driver() string { return r.driver }
