package playliststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/pkg/playback"
)

var _ Store = (*PostgresStore)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS saved_playlists (
    guild_id    TEXT        NOT NULL,
    name        TEXT        NOT NULL,
    created_by  TEXT        NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (guild_id, name)
);

CREATE TABLE IF NOT EXISTS saved_playlist_tracks (
    guild_id     TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    position     INTEGER NOT NULL,
    track_id     TEXT    NOT NULL,
    title        TEXT    NOT NULL,
    duration_ms  BIGINT  NOT NULL DEFAULT 0,
    location     TEXT    NOT NULL,
    format       TEXT    NOT NULL DEFAULT '',
    requester    TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (guild_id, name, position),
    FOREIGN KEY (guild_id, name)
        REFERENCES saved_playlists (guild_id, name) ON DELETE CASCADE
);
`

// trackColumns is the CopyFrom column order for saved_playlist_tracks.
var trackColumns = []string{
	"guild_id", "name", "position", "track_id", "title",
	"duration_ms", "location", "format", "requester",
}

// PostgresStore stores playlists in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, pings the server and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("playliststore: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("playliststore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("playliststore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the playlist tables if they do not exist. It is safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("playliststore: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. The playlist row and its tracks are replaced in a
// single transaction.
func (s *PostgresStore) Save(ctx context.Context, p Saved) error {
	key, err := normalizeName(p.Name)
	if err != nil {
		return fmt.Errorf("playliststore: save %q: %w", p.Name, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("playliststore: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			observe.Logger(ctx).Warn("playliststore: rollback failed", "err", err)
		}
	}()

	const upsert = `
	INSERT INTO saved_playlists (guild_id, name, created_by, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (guild_id, name) DO UPDATE SET
		created_by = EXCLUDED.created_by,
		updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, upsert, p.GuildID, key, p.CreatedBy); err != nil {
		return fmt.Errorf("playliststore: upsert playlist: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM saved_playlist_tracks WHERE guild_id = $1 AND name = $2`,
		p.GuildID, key,
	); err != nil {
		return fmt.Errorf("playliststore: clear tracks: %w", err)
	}

	rows := make([][]any, len(p.Tracks))
	for i, t := range p.Tracks {
		rows[i] = []any{
			p.GuildID, key, int32(i), t.ID, t.Title,
			t.Duration.Milliseconds(), t.Location, t.Format, t.Requester,
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"saved_playlist_tracks"}, trackColumns, pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("playliststore: insert tracks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("playliststore: commit: %w", err)
	}
	return nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context, guildID, name string) (Saved, error) {
	key, err := normalizeName(name)
	if err != nil {
		return Saved{}, ErrNotFound
	}

	p := Saved{GuildID: guildID, Name: key}
	err = s.pool.QueryRow(ctx,
		`SELECT created_by, updated_at FROM saved_playlists WHERE guild_id = $1 AND name = $2`,
		guildID, key,
	).Scan(&p.CreatedBy, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Saved{}, ErrNotFound
	}
	if err != nil {
		return Saved{}, fmt.Errorf("playliststore: load %q: %w", key, err)
	}

	rows, err := s.pool.Query(ctx, `
	SELECT track_id, title, duration_ms, location, format, requester
	FROM saved_playlist_tracks
	WHERE guild_id = $1 AND name = $2
	ORDER BY position`, guildID, key)
	if err != nil {
		return Saved{}, fmt.Errorf("playliststore: load tracks: %w", err)
	}
	p.Tracks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (playback.Track, error) {
		var (
			t  playback.Track
			ms int64
		)
		err := row.Scan(&t.ID, &t.Title, &ms, &t.Location, &t.Format, &t.Requester)
		t.Duration = time.Duration(ms) * time.Millisecond
		return t, err
	})
	if err != nil {
		return Saved{}, fmt.Errorf("playliststore: scan tracks: %w", err)
	}
	return p, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, guildID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM saved_playlists WHERE guild_id = $1 ORDER BY name`, guildID)
	if err != nil {
		return nil, fmt.Errorf("playliststore: list: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("playliststore: list: %w", err)
	}
	return names, nil
}

// Delete implements [Store].
func (s *PostgresStore) Delete(ctx context.Context, guildID, name string) error {
	key, err := normalizeName(name)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM saved_playlists WHERE guild_id = $1 AND name = $2`, guildID, key)
	if err != nil {
		return fmt.Errorf("playliststore: delete %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
