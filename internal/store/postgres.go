package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/qabilityp/namechecker/internal/db"
	"github.com/qabilityp/namechecker/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS countries (
	id                  BIGSERIAL PRIMARY KEY,
	code                TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL,
	common_name         TEXT NOT NULL DEFAULT '',
	region              TEXT NOT NULL DEFAULT '',
	independent         BOOLEAN NOT NULL DEFAULT true,
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
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	count_of_requests BIGINT NOT NULL DEFAULT 1,
	last_accessed     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_names_name ON names(name, id);

CREATE TABLE IF NOT EXISTS name_country_probabilities (
	id          BIGSERIAL PRIMARY KEY,
	name_id     BIGINT NOT NULL REFERENCES names(id),
	country_id  BIGINT NOT NULL REFERENCES countries(id),
	probability DOUBLE PRECISION NOT NULL,
	UNIQUE (name_id, country_id)
);

CREATE INDEX IF NOT EXISTS idx_ncp_country_id ON name_country_probabilities(country_id);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCountry(ctx context.Context, code string) (*model.Country, error) {
	c, err := scanCountry(s.pool.QueryRow(ctx,
		`SELECT `+countryColumns+` FROM countries WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get country %s", code)
	}
	return c, nil
}

func (s *PostgresStore) CreateCountry(ctx context.Context, c model.Country) (*model.Country, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO countries (code, name, common_name, region, independent, google_maps, open_street_maps,
			capital, capital_coordinates, flag_png, flag_svg, flag_alt, coat_of_arms_png, coat_of_arms_svg, borders)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (code) DO NOTHING`,
		countryArgs(c)...,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create country %s", c.Code)
	}

	stored, err := s.GetCountry(ctx, c.Code)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, eris.Errorf("postgres: country %s missing after insert", c.Code)
	}
	return stored, nil
}

func (s *PostgresStore) FindName(ctx context.Context, name string) (*model.NameRecord, error) {
	rec, err := scanName(s.pool.QueryRow(ctx,
		`SELECT `+nameColumns+` FROM names WHERE name = $1 ORDER BY id LIMIT 1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find name %s", name)
	}
	return rec, nil
}

func (s *PostgresStore) IncrementName(ctx context.Context, id int64) (*model.NameRecord, error) {
	rec, err := scanName(s.pool.QueryRow(ctx,
		`UPDATE names SET count_of_requests = count_of_requests + 1 WHERE id = $1
		 RETURNING `+nameColumns, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: increment name %d", id)
	}
	return rec, nil
}

// UpsertName bumps the first record for name and stamps last_accessed, or
// inserts it with count 1. A transaction-scoped advisory lock keyed on the
// name serializes concurrent first lookups so only one row is created.
func (s *PostgresStore) UpsertName(ctx context.Context, name string, now time.Time) (*model.NameRecord, error) {
	var rec *model.NameRecord
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return eris.Wrapf(err, "postgres: lock name %s", name)
		}

		var err error
		rec, err = scanName(tx.QueryRow(ctx,
			`UPDATE names SET count_of_requests = count_of_requests + 1, last_accessed = $2
			 WHERE id = (SELECT id FROM names WHERE name = $1 ORDER BY id LIMIT 1)
			 RETURNING `+nameColumns, name, now))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(err, "postgres: update name %s", name)
		}

		rec, err = scanName(tx.QueryRow(ctx,
			`INSERT INTO names (name, count_of_requests, last_accessed) VALUES ($1, 1, $2)
			 RETURNING `+nameColumns, name, now))
		return eris.Wrapf(err, "postgres: insert name %s", name)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) UpsertLink(ctx context.Context, nameID, countryID int64, probability float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO name_country_probabilities (name_id, country_id, probability) VALUES ($1, $2, $3)
		 ON CONFLICT (name_id, country_id) DO UPDATE SET probability = EXCLUDED.probability`,
		nameID, countryID, probability,
	)
	return eris.Wrapf(err, "postgres: upsert link %d/%d", nameID, countryID)
}

func (s *PostgresStore) ListLinks(ctx context.Context, nameID int64) ([]model.CountryProbability, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.code, c.name, p.probability
		 FROM name_country_probabilities p JOIN countries c ON c.id = p.country_id
		 WHERE p.name_id = $1 ORDER BY p.id`,
		nameID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list links %d", nameID)
	}
	defer rows.Close()

	out := []model.CountryProbability{}
	for rows.Next() {
		var cp model.CountryProbability
		if err := rows.Scan(&cp.CountryCode, &cp.CountryName, &cp.Probability); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate links")
}

const topNamesQuery = `
SELECT n.id, n.name, n.count_of_requests, COUNT(p.id) AS link_count, MAX(p.probability)
FROM names n
JOIN name_country_probabilities p ON p.name_id = n.id
WHERE p.country_id = $1
GROUP BY n.id, n.name, n.count_of_requests
ORDER BY link_count DESC, n.name ASC, n.id ASC
LIMIT $2`

func (s *PostgresStore) TopNames(ctx context.Context, countryID int64, limit int) ([]model.PopularName, error) {
	rows, err := s.pool.Query(ctx, topNamesQuery, countryID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: top names for country %d", countryID)
	}
	defer rows.Close()

	var out []model.PopularName
	for rows.Next() {
		p, err := scanPopular(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan popular name")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate popular names")
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "postgres: username %s", username)
		}
		return nil, eris.Wrapf(err, "postgres: create user %s", username)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get user %s", username)
	}
	return &u, nil
}
