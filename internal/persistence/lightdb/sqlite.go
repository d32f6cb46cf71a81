// Package lightdb keeps published section light in SQLite so a restarted
// server can install it instead of lighting every chunk again.
package lightdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelcraft.ai/lumen/internal/sim/light"
	"voxelcraft.ai/lumen/internal/sim/light/engine"
	"voxelcraft.ai/lumen/internal/sim/light/nibble"
	"voxelcraft.ai/lumen/internal/sim/light/voxel"
)

var ErrClosed = errors.New("lightdb: closed")

type DB struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	written atomic.Uint64
	commits atomic.Uint64
	failed  atomic.Uint64
}

type reqKind int

const (
	reqSection reqKind = iota + 1
	reqFlush
)

type req struct {
	kind    reqKind
	section sectionRow
	done    chan struct{}
}

type sectionRow struct {
	CX, SY, CZ int
	Channel    engine.Channel
	Version    int
	Light      nibble.Persisted
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	d := &DB{
		db: db,
		ch: make(chan req, 16384),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS section_light (
			cx INTEGER NOT NULL,
			sy INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			channel INTEGER NOT NULL,
			state INTEGER NOT NULL,
			data BLOB,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (cx, cz, sy, channel)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (d *DB) Close() error {
	var err error
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
		err = d.db.Close()
	})
	return err
}

// WriteSection queues one section's light. It blocks while the queue is
// full: dropping a write would leave older light in the table.
func (d *DB) WriteSection(pos voxel.SectionPos, ch engine.Channel, version int, p nibble.Persisted) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}
	d.ch <- req{kind: reqSection, section: sectionRow{
		CX: pos.X, SY: pos.Y, CZ: pos.Z,
		Channel: ch,
		Version: version,
		Light:   p,
	}}
	return nil
}

// WriteChunk queues every section of a chunk payload.
func (d *DB) WriteChunk(pos voxel.ChunkPos, p light.ChunkPayload) error {
	for _, group := range []struct {
		ch       engine.Channel
		sections []light.SectionPayload
	}{{engine.BlockLight, p.Block}, {engine.SkyLight, p.Sky}} {
		for _, sp := range group.sections {
			if err := d.WriteSection(pos.Section(sp.Y), group.ch, p.Version, sp.Light); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush waits until everything queued before it is committed.
func (d *DB) Flush(ctx context.Context) error {
	if d == nil || d.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case d.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadChunk reads the stored light of one chunk. ok is false when nothing is
// stored. Rows written under different versions yield version 0, which no
// System accepts.
func (d *DB) LoadChunk(ctx context.Context, pos voxel.ChunkPos) (p light.ChunkPayload, ok bool, err error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT sy, channel, state, data, version FROM section_light WHERE cx = ? AND cz = ? ORDER BY channel, sy`,
		pos.X, pos.Z)
	if err != nil {
		return p, false, err
	}
	defer rows.Close()

	version := -1
	for rows.Next() {
		var (
			sy, channel, state, v int
			data                  []byte
		)
		if err := rows.Scan(&sy, &channel, &state, &data, &v); err != nil {
			return p, false, err
		}
		switch {
		case version == -1:
			version = v
		case version != v:
			version = 0
		}
		sp := light.SectionPayload{Y: sy, Light: nibble.Persisted{State: nibble.State(state), Data: data}}
		if engine.Channel(channel) == engine.SkyLight {
			p.Sky = append(p.Sky, sp)
		} else {
			p.Block = append(p.Block, sp)
		}
	}
	if err := rows.Err(); err != nil {
		return p, false, err
	}
	if version == -1 {
		return light.ChunkPayload{}, false, nil
	}
	p.Version = version
	return p, true, nil
}

func (d *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key, value) VALUES(?, ?)`, key, value)
	return err
}

func (d *DB) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

type Stats struct {
	Written       uint64
	Commits       uint64
	Failed        uint64
	QueueDepth    int
	QueueCapacity int
}

func (d *DB) Stats() Stats {
	return Stats{
		Written:       d.written.Load(),
		Commits:       d.commits.Load(),
		Failed:        d.failed.Load(),
		QueueDepth:    len(d.ch),
		QueueCapacity: cap(d.ch),
	}
}

func (d *DB) loop() {
	ctx := context.Background()

	upsert, _ := d.db.Prepare(`INSERT OR REPLACE INTO section_light(cx,sy,cz,channel,state,data,version,updated_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 2000
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			d.failed.Add(uint64(opCount))
		} else {
			d.written.Add(uint64(opCount))
			d.commits.Add(1)
		}
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		d.failed.Add(uint64(opCount) + 1)
		tx = nil
		opCount = 0
	}

	for r := range d.ch {
		switch r.kind {
		case reqFlush:
			commit()
			close(r.done)
			continue
		case reqSection:
			begin()
			if tx == nil || upsert == nil {
				d.failed.Add(1)
				continue
			}
			s := r.section
			var data []byte
			if s.Light.State == nibble.Initialized {
				data = s.Light.Data
			}
			if _, err := tx.Stmt(upsert).Exec(
				s.CX, s.SY, s.CZ,
				int(s.Channel),
				int(s.Light.State),
				data,
				s.Version,
				time.Now().UTC().Format(time.RFC3339),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit once the queue drains so no transaction stays open while idle.
		if opCount >= commitEvery || len(d.ch) == 0 {
			commit()
		}
	}
	commit()
}
