package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/qabilityp/namechecker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is capped at one connection so every transaction is a single writer.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS countries (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	code                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	common_name         TEXT NOT NULL DEFAULT '',
	region              TEXT NOT NULL DEFAULT '',
	independent         BOOLEAN NOT NULL DEFAULT 1,
	google_maps         TEXT NOT NULL DEFAULT '',
	open_street_maps    TEXT NOT NULL DEFAULT '',
	capital             TEXT NOT NULL DEFAULT '',
	capital_coordinates TEXT NOT NULL DEFAULT '',
	flag_png            TEXT NOT NULL DEFAULT '',
	flag_svg            TEXT NOT NULL DEFAULT '',
	flag_alt            TEXT NOT NULL DEFAULT '',
	coat_of_arms_png    TEXT NOT NULL DEFAULT '',
	coat_of_arms_svg    TEXT NOT NULL DEFAULT '',
	borders             TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS names (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL,
	count_of_requests INTEGER NOT NULL DEFAULT 1,
	last_accessed     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_names_name ON names(name, id);

CREATE TABLE IF NOT EXISTS name_country_probabilities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name_id     INTEGER NOT NULL REFERENCES names(id),
	country_id  INTEGER NOT NULL REFERENCES countries(id),
	probability REAL NOT NULL,
	UNIQUE (name_id, country_id)
);

CREATE INDEX IF NOT EXISTS idx_ncp_country_id ON name_country_probabilities(country_id);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	c, err := scanCountry(s.db.QueryRowContext(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE code = ?`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get country %s", code)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCountry(ctx context.Context, c model.Country) (*model.Country, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO countries (code, name, common_name, region, independent, google_maps, open_street_maps,
			capital, capital_coordinates, flag_png, flag_svg, flag_alt, coat_of_arms_png, coat_of_arms_svg, borders)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO NOTHING`,
		countryArgs(c)...,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create country %s", c.Code)
	}

	stored, err := s.GetCountry(ctx, c.Code)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, eris.Errorf("sqlite: country %s missing after insert", c.Code)
	}
	return stored, nil
}

func (s *SQLiteStore) FindName(ctx context.Context, name string) (*model.NameRecord, error) {
	rec, err := scanName(s.db.QueryRowContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE name = ? ORDER BY id LIMIT 1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: find name %s", name)
	}
	return rec, nil
}

func (s *SQLiteStore) IncrementName(ctx context.Context, id int64) (*model.NameRecord, error) {
	var rec *model.NameRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE names SET count_of_requests = count_of_requests + 1 WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: increment name %d", id)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return eris.Errorf("sqlite: name not found: %d", id)
		}
		rec, err = getNameByID(ctx, tx, id)
		return err
	})
	return rec, err
}

// UpsertName bumps the first record for name and stamps last_accessed, or
// inserts it with count 1. The single pooled connection serializes the
// transaction against every other writer.
func (s *SQLiteStore) UpsertName(ctx context.Context, name string, now time.Time) (*model.NameRecord, error) {
	now = now.UTC()
	var rec *model.NameRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM names WHERE name = ? ORDER BY id LIMIT 1`, name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO names (name, count_of_requests, last_accessed) VALUES (?, 1, ?)`, name, now)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert name %s", name)
			}
			if id, err = res.LastInsertId(); err != nil {
				return eris.Wrap(err, "sqlite: last insert id")
			}
		case err != nil:
			return eris.Wrapf(err, "sqlite: find name %s", name)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE names SET count_of_requests = count_of_requests + 1, last_accessed = ? WHERE id = ?`,
				now, id); err != nil {
				return eris.Wrapf(err, "sqlite: update name %s", name)
			}
		}

		rec, err = getNameByID(ctx, tx, id)
		return err
	})
	return rec, err
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func getNameByID(ctx context.Context, tx *sql.Tx, id int64) (*model.NameRecord, error) {
	rec, err := scanName(tx.QueryRowContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get name %d", id)
	}
	return rec, nil
}

func (s *SQLiteStore) UpsertLink(ctx context.Context, nameID, countryID int64, probability float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO name_country_probabilities (name_id, country_id, probability) VALUES (?, ?, ?)
		 ON CONFLICT (name_id, country_id) DO UPDATE SET probability = excluded.probability`,
		nameID, countryID, probability,
	)
	return eris.Wrapf(err, "sqlite: upsert link %d/%d", nameID, countryID)
}

func (s *SQLiteStore) ListLinks(ctx context.Context, nameID int64) ([]model.CountryProbability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.code, c.name, p.probability
		 FROM name_country_probabilities p JOIN countries c ON c.id = p.country_id
		 WHERE p.name_id = ? ORDER BY p.id`,
		nameID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list links %d", nameID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.CountryProbability{}
	for rows.Next() {
		var cp model.CountryProbability
		if err := rows.Scan(&cp.CountryCode, &cp.CountryName, &cp.Probability); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate links")
}

const sqliteTopNamesQuery = `
SELECT n.id, n.name, n.count_of_requests, COUNT(p.id) AS link_count, MAX(p.probability)
FROM names n
JOIN name_country_probabilities p ON p.name_id = n.id
WHERE p.country_id = ?
GROUP BY n.id, n.name, n.count_of_requests
ORDER BY link_count DESC, n.name ASC, n.id ASC
LIMIT ?`

func (s *SQLiteStore) TopNames(ctx context.Context, countryID int64, limit int) ([]model.PopularName, error) {
	rows, err := s.db.QueryContext(ctx, sqliteTopNamesQuery, countryID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: top names for country %d", countryID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PopularName
	for rows.Next() {
		p, err := scanPopular(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan popular name")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate popular names")
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (username) DO NOTHING`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create user %s", username)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrDuplicate, "sqlite: username %s", username)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get user %s", username)
	}
	return &u, nil
}
