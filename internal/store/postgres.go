package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/facility-registry/internal/db"
	"github.com/sells-group/facility-registry/internal/model"
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

var _ Store = (*PostgresStore)(nil)

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
		return nil, model.Unavailable("postgres: create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, model.Unavailable("postgres: ping", err)
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS factories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	country    TEXT NOT NULL,
	source_ids TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS addresses (
	id              TEXT PRIMARY KEY,
	address         TEXT NOT NULL,
	country         TEXT NOT NULL,
	related_factory TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geos (
	id              TEXT PRIMARY KEY,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	country         TEXT NOT NULL,
	point           geometry(Point, 4326),
	related_address TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (latitude, longitude, country)
);

CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	uploader_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	name_key    TEXT NOT NULL,
	files       JSONB NOT NULL DEFAULT '[]',
	user_type   TEXT NOT NULL DEFAULT 'contributor',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS temps (
	id            TEXT PRIMARY KEY,
	uploader_id   TEXT NOT NULL,
	uploader_name TEXT NOT NULL,
	user_type     TEXT NOT NULL DEFAULT 'contributor',
	file          JSONB NOT NULL,
	raw_row       JSONB NOT NULL,
	matches       JSONB NOT NULL DEFAULT '[]',
	status        TEXT NOT NULL DEFAULT 'unprocessed',
	source_id     TEXT NOT NULL DEFAULT '',
	factory_id    TEXT NOT NULL DEFAULT '',
	address_id    TEXT NOT NULL DEFAULT '',
	claimed_at    TIMESTAMPTZ,
	processed     TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS confirms (
	id              TEXT PRIMARY KEY,
	claimed_name    TEXT NOT NULL,
	claimed_address TEXT NOT NULL,
	source_id       TEXT NOT NULL,
	temp_id         TEXT NOT NULL,
	factory_id      TEXT NOT NULL,
	address_id      TEXT NOT NULL,
	matched_id      TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (temp_id, matched_id)
);

CREATE INDEX IF NOT EXISTS idx_factories_name_key ON factories(name_key);
CREATE INDEX IF NOT EXISTS idx_addresses_country ON addresses(upper(country));
CREATE INDEX IF NOT EXISTS idx_geos_point ON geos USING GIST (point);
CREATE INDEX IF NOT EXISTS idx_sources_uploader ON sources(uploader_id, name_key);
CREATE INDEX IF NOT EXISTS idx_temps_status_created ON temps(status, created_at);
CREATE INDEX IF NOT EXISTS idx_confirms_factory_address ON confirms(factory_id, address_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return model.Unavailable("postgres: ping", err)
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

// fail classifies a driver error: no rows becomes NotFound, anything not
// already classified becomes StorageUnavailable.
func fail(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return eris.Wrap(model.ErrNotFound, op)
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrStorageUnavailable),
		errors.Is(err, model.ErrCountryMismatch), errors.Is(err, model.ErrMissingField),
		errors.Is(err, model.ErrInvalidField):
		return eris.Wrap(err, op)
	}
	return model.Unavailable(op, err)
}

func (s *PostgresStore) ListCandidates(ctx context.Context, country string) ([]model.FactoryAddress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, a.id, f.name, a.address, a.country
		FROM addresses a
		JOIN factories f ON f.id = ANY(a.related_factory)
		WHERE ($1 = '' OR upper(a.country) = upper($1))
		ORDER BY a.created_at, a.id, f.id`,
		country,
	)
	if err != nil {
		return nil, fail("postgres: list candidates", err)
	}
	defer rows.Close()

	var out []model.FactoryAddress
	for rows.Next() {
		var fa model.FactoryAddress
		if err := rows.Scan(&fa.FactoryID, &fa.AddressID, &fa.Name, &fa.Address, &fa.Country); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, fa)
	}
	return out, fail("postgres: list candidates iterate", rows.Err())
}

func (s *PostgresStore) ListReports(ctx context.Context, q ReportQuery) ([]model.FacilityReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.latitude, g.longitude, g.country, g.updated_at,
		       f.id, a.id, f.name, a.address, f.source_ids
		FROM geos g
		JOIN addresses a ON a.id = ANY(g.related_address) AND upper(a.country) = upper(g.country)
		JOIN factories f ON f.id = ANY(a.related_factory)
		WHERE ($1 = '' OR f.name_key LIKE '%' || $1 || '%')
		  AND ($2 = '' OR upper(g.country) = upper($2))
		ORDER BY g.created_at, g.id, a.id, f.id`,
		sourceNameKey(q.NamePattern), q.Country,
	)
	if err != nil {
		return nil, fail("postgres: list reports", err)
	}

	var (
		reports    []model.FacilityReport
		sourceIDs  []string
		factoryIDs []string
		refs       [][]string
	)
	for rows.Next() {
		var r model.FacilityReport
		var ids []string
		if err := rows.Scan(&r.GeoID, &r.Latitude, &r.Longitude, &r.Country, &r.GeoUpdatedAt,
			&r.FactoryID, &r.AddressID, &r.Name, &r.Address, &ids); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		reports = append(reports, r)
		refs = append(refs, ids)
		sourceIDs = append(sourceIDs, ids...)
		factoryIDs = append(factoryIDs, r.FactoryID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fail("postgres: list reports iterate", err)
	}
	if len(reports) == 0 {
		return nil, nil
	}

	sources, err := s.sourceRefs(ctx, sourceIDs)
	if err != nil {
		return nil, err
	}
	confirms, err := s.confirmRefs(ctx, factoryIDs)
	if err != nil {
		return nil, err
	}

	for i := range reports {
		reports[i].Sources = make([]model.SourceRef, 0, len(refs[i]))
		for _, id := range refs[i] {
			if ref, ok := sources[id]; ok {
				reports[i].Sources = append(reports[i].Sources, ref)
			}
		}
		reports[i].Confirmed = confirms[reports[i].FactoryID+"|"+reports[i].AddressID]
	}
	return reports, nil
}

func (s *PostgresStore) sourceRefs(ctx context.Context, ids []string) (map[string]model.SourceRef, error) {
	out := make(map[string]model.SourceRef)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, uploader_id, name, files, user_type, created_at, updated_at
		FROM sources WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fail("postgres: load report sources", err)
	}
	defer rows.Close()

	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out[src.ID] = src.Ref()
	}
	return out, fail("postgres: load report sources iterate", rows.Err())
}

func (s *PostgresStore) confirmRefs(ctx context.Context, factoryIDs []string) (map[string][]model.ConfirmRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, claimed_name, claimed_address, factory_id, address_id
		FROM confirms WHERE factory_id = ANY($1)
		ORDER BY created_at, id`,
		factoryIDs,
	)
	if err != nil {
		return nil, fail("postgres: load report confirms", err)
	}
	defer rows.Close()

	out := make(map[string][]model.ConfirmRef)
	for rows.Next() {
		var c model.ConfirmRef
		var factoryID, addressID string
		if err := rows.Scan(&c.ID, &c.SourceID, &c.ClaimedName, &c.ClaimedAddress, &factoryID, &addressID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan confirm ref")
		}
		key := factoryID + "|" + addressID
		out[key] = append(out[key], c)
	}
	return out, fail("postgres: load report confirms iterate", rows.Err())
}

func (s *PostgresStore) CreateFactory(ctx context.Context, f model.Factory) (*model.Factory, error) {
	f.ID = newID(f.ID)
	if f.SourceIDs == nil {
		f.SourceIDs = []string{}
	}
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = f.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO factories (id, name, name_key, country, source_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.Name, sourceNameKey(f.Name), f.Country, f.SourceIDs, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return nil, fail("postgres: insert factory", err)
	}
	return &f, nil
}

func (s *PostgresStore) AddFactorySource(ctx context.Context, factoryID, sourceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE factories
		 SET source_ids = CASE WHEN $2 = ANY(source_ids) THEN source_ids ELSE array_append(source_ids, $2) END,
		     updated_at = now()
		 WHERE id = $1`,
		factoryID, sourceID,
	)
	if err != nil {
		return fail("postgres: add factory source", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("factory", factoryID)
	}
	return nil
}

func (s *PostgresStore) CreateAddress(ctx context.Context, a model.Address) (*model.Address, error) {
	a.ID = newID(a.ID)
	if a.RelatedFactory == nil {
		a.RelatedFactory = []string{}
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO addresses (id, address, country, related_factory, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Address, a.Country, a.RelatedFactory, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fail("postgres: insert address", err)
	}
	return &a, nil
}

func (s *PostgresStore) RelateAddressFactory(ctx context.Context, addressID, factoryID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE addresses
		 SET related_factory = CASE WHEN $2 = ANY(related_factory) THEN related_factory ELSE array_append(related_factory, $2) END,
		     updated_at = now()
		 WHERE id = $1 AND EXISTS (SELECT 1 FROM factories WHERE id = $2)`,
		addressID, factoryID,
	)
	if err != nil {
		return fail("postgres: relate address factory", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("address/factory", addressID+"/"+factoryID)
	}
	return nil
}

// encodePoint returns the EWKB of (lng, lat) in SRID 4326.
func encodePoint(lat, lng float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

func (s *PostgresStore) FindOrCreateGeo(ctx context.Context, lat, lng float64, country string, now time.Time) (*model.Geo, error) {
	point, err := encodePoint(lat, lng)
	if err != nil {
		return nil, err
	}

	g := model.Geo{Latitude: lat, Longitude: lng, Country: strings.ToUpper(strings.TrimSpace(country)), UpdatedAt: now}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO geos (id, latitude, longitude, country, point, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5), $6, $6)
		 ON CONFLICT (latitude, longitude, country) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING id, related_address, created_at`,
		uuid.New().String(), lat, lng, g.Country, point, now,
	).Scan(&g.ID, &g.RelatedAddress, &g.CreatedAt)
	if err != nil {
		return nil, fail("postgres: find or create geo", err)
	}
	return &g, nil
}

func (s *PostgresStore) RelateGeoAddress(ctx context.Context, geoID, addressID string) error {
	var geoCountry, addrCountry string
	err := s.pool.QueryRow(ctx,
		`SELECT g.country, a.country FROM geos g, addresses a WHERE g.id = $1 AND a.id = $2`,
		geoID, addressID,
	).Scan(&geoCountry, &addrCountry)
	if err != nil {
		return fail("postgres: relate geo address "+geoID+"/"+addressID, err)
	}
	if !sameCountry(geoCountry, addrCountry) {
		return eris.Wrapf(model.ErrCountryMismatch, "postgres: geo %s (%s) address %s (%s)", geoID, geoCountry, addressID, addrCountry)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE geos SET related_address = array_append(related_address, $2)
		 WHERE id = $1 AND NOT ($2 = ANY(related_address))`,
		geoID, addressID,
	)
	return fail("postgres: relate geo address", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (model.Source, error) {
	var src model.Source
	var files []byte
	if err := row.Scan(&src.ID, &src.UploaderID, &src.Name, &files, &src.UserType, &src.CreatedAt, &src.UpdatedAt); err != nil {
		return src, fail("postgres: scan source", err)
	}
	if err := json.Unmarshal(files, &src.Files); err != nil {
		return src, eris.Wrap(err, "postgres: unmarshal source files")
	}
	return src, nil
}

// FindOrCreateSource holds a transaction-scoped advisory lock on the
// uploader id, so at most one find-or-create per uploader runs across every
// process sharing the database.
func (s *PostgresStore) FindOrCreateSource(ctx context.Context, key model.SourceKey, userType string, file model.UploadFile, now time.Time) (*model.Source, error) {
	var out model.Source
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.UploaderID); err != nil {
			return fail("postgres: lock uploader", err)
		}
		src, err := scanSource(tx.QueryRow(ctx,
			`SELECT id, uploader_id, name, files, user_type, created_at, updated_at
			 FROM sources WHERE uploader_id = $1 AND name_key = $2
			 ORDER BY created_at LIMIT 1 FOR UPDATE`,
			key.UploaderID, sourceNameKey(key.Name),
		))
		created := false
		switch {
		case errors.Is(err, model.ErrNotFound):
			created = true
			src = model.Source{
				ID:         uuid.New().String(),
				UploaderID: key.UploaderID,
				UserType:   userType,
				Files:      []model.UploadFile{},
				CreatedAt:  now,
			}
		case err != nil:
			return err
		}

		src.Name = key.Name
		if file.ID != "" {
			src.AppendFile(file)
		}
		src.UpdatedAt = now
		files, err := json.Marshal(src.Files)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source files")
		}

		if created {
			_, err = tx.Exec(ctx,
				`INSERT INTO sources (id, uploader_id, name, name_key, files, user_type, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				src.ID, src.UploaderID, src.Name, sourceNameKey(src.Name), files, src.UserType, src.CreatedAt, src.UpdatedAt,
			)
		} else {
			_, err = tx.Exec(ctx,
				`UPDATE sources SET name = $2, files = $3, updated_at = $4 WHERE id = $1`,
				src.ID, src.Name, files, src.UpdatedAt,
			)
		}
		if err != nil {
			return fail("postgres: save source", err)
		}
		out = src
		return nil
	})
	if err != nil {
		return nil, fail("postgres: find or create source", err)
	}
	return &out, nil
}

func (s *PostgresStore) DuplicateSources(ctx context.Context) ([][]model.Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, uploader_id, name, files, user_type, created_at, updated_at
		FROM sources
		WHERE (uploader_id, name_key) IN (
			SELECT uploader_id, name_key FROM sources GROUP BY uploader_id, name_key HAVING count(*) > 1
		)
		ORDER BY uploader_id, name_key, created_at, id`)
	if err != nil {
		return nil, fail("postgres: duplicate sources", err)
	}
	defer rows.Close()

	var groups [][]model.Source
	var last model.SourceKey
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		k := model.SourceKey{UploaderID: src.UploaderID, Name: sourceNameKey(src.Name)}
		if len(groups) == 0 || k != last {
			groups = append(groups, nil)
			last = k
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], src)
	}
	return groups, fail("postgres: duplicate sources iterate", rows.Err())
}

func (s *PostgresStore) MergeSources(ctx context.Context, keep model.Source, duplicateIDs []string) error {
	files, err := json.Marshal(keep.Files)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source files")
	}

	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sources SET name = $2, files = $3, updated_at = $4 WHERE id = $1`,
			keep.ID, keep.Name, files, keep.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return notFound("source", keep.ID)
		}

		statements := []string{
			`UPDATE factories SET source_ids = (
				SELECT array_agg(sid ORDER BY first_seen) FROM (
					SELECT CASE WHEN x = ANY($2) THEN $1 ELSE x END AS sid, min(ord) AS first_seen
					FROM unnest(source_ids) WITH ORDINALITY AS u(x, ord)
					GROUP BY 1
				) d
			 ) WHERE source_ids && $2`,
			`UPDATE confirms SET source_id = $1 WHERE source_id = ANY($2)`,
			`UPDATE temps SET source_id = $1 WHERE source_id = ANY($2)`,
			`DELETE FROM sources WHERE id = ANY($2) AND id <> $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, keep.ID, duplicateIDs); err != nil {
				return err
			}
		}
		return nil
	})
	return fail("postgres: merge sources", err)
}

func (s *PostgresStore) EnqueueTemps(ctx context.Context, temps []model.Temp) error {
	rows := make([][]any, 0, len(temps))
	for _, t := range temps {
		file, err := json.Marshal(t.File)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal temp file")
		}
		raw, err := json.Marshal(t.Row)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal temp row")
		}
		status := t.Status
		if status == "" {
			status = model.TempUnprocessed
		}
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		rows = append(rows, []any{
			newID(t.ID), t.UploaderID, t.UploaderName, t.UserType, file, raw, string(status), created, created,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "temps",
		[]string{"id", "uploader_id", "uploader_name", "user_type", "file", "raw_row", "status", "created_at", "updated_at"},
		rows,
	)
	return fail("postgres: enqueue temps", err)
}

const tempColumns = `id, uploader_id, uploader_name, user_type, file, raw_row, matches, status,
	source_id, factory_id, address_id, claimed_at, processed, created_at, updated_at`

func scanTemp(row scanner) (model.Temp, error) {
	var t model.Temp
	var file, raw, matches []byte
	var status string
	if err := row.Scan(&t.ID, &t.UploaderID, &t.UploaderName, &t.UserType, &file, &raw, &matches, &status,
		&t.SourceID, &t.FactoryID, &t.AddressID, &t.ClaimedAt, &t.Processed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, fail("postgres: scan temp", err)
	}
	t.Status = model.TempStatus(status)
	if err := json.Unmarshal(file, &t.File); err != nil {
		return t, eris.Wrap(err, "postgres: unmarshal temp file")
	}
	if err := json.Unmarshal(raw, &t.Row); err != nil {
		return t, eris.Wrap(err, "postgres: unmarshal temp row")
	}
	if len(matches) > 0 {
		if err := json.Unmarshal(matches, &t.Matches); err != nil {
			return t, eris.Wrap(err, "postgres: unmarshal temp matches")
		}
	}
	return t, nil
}

// ClaimTemps flips up to limit Unprocessed rows, oldest first, to Processing.
// Rows locked by another sweep are skipped.
func (s *PostgresStore) ClaimTemps(ctx context.Context, limit int, now time.Time) ([]model.Temp, error) {
	var claimed []model.Temp
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+tempColumns+`
			FROM temps
			WHERE status = 'unprocessed' AND processed IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`,
			limit,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			t, err := scanTemp(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
			claimedAt := now
			claimed[i].Status = model.TempProcessing
			claimed[i].ClaimedAt = &claimedAt
			claimed[i].UpdatedAt = now
		}
		_, err = tx.Exec(ctx, `
			UPDATE temps SET status = 'processing', claimed_at = $2, updated_at = $2
			WHERE id = ANY($1)`,
			ids, now,
		)
		return err
	})
	if err != nil {
		return nil, fail("postgres: claim temps", err)
	}
	return claimed, nil
}

func (s *PostgresStore) CompleteTemp(ctx context.Context, t model.Temp, now time.Time) error {
	matches, err := json.Marshal(t.Matches)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal temp matches")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE temps
		 SET status = 'processed', processed = $2, matches = $3, source_id = $4,
		     factory_id = $5, address_id = $6, updated_at = $2
		 WHERE id = $1 AND status = 'processing'`,
		t.ID, now, matches, t.SourceID, t.FactoryID, t.AddressID,
	)
	if err != nil {
		return fail("postgres: complete temp", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("processing temp", t.ID)
	}
	return nil
}

func (s *PostgresStore) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE temps SET status = 'unprocessed', claimed_at = NULL, updated_at = now()
		 WHERE status = 'processing' AND processed IS NULL
		   AND (claimed_at IS NULL OR claimed_at < $1)`,
		claimedBefore,
	)
	if err != nil {
		return 0, fail("postgres: reclaim stale temps", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetTemp(ctx context.Context, id string) (*model.Temp, error) {
	t, err := scanTemp(s.pool.QueryRow(ctx, `SELECT `+tempColumns+` FROM temps WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get temp %s", id)
	}
	return &t, nil
}

func (s *PostgresStore) SetMatchConfirmed(ctx context.Context, tempID string, index int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE temps SET matches = jsonb_set(matches, ARRAY[$2, 'confirm'], 'true'::jsonb), updated_at = now()
		 WHERE id = $1 AND $3 >= 0 AND $3 < jsonb_array_length(matches)`,
		tempID, strconv.Itoa(index), index,
	)
	if err != nil {
		return fail("postgres: set match confirmed", err)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: temp %s has no match %d", tempID, index)
	}
	return nil
}

func (s *PostgresStore) CreateConfirm(ctx context.Context, c model.Confirm) (*model.Confirm, error) {
	c.ID = newID(c.ID)
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.pool.Exec(ctx,
		`INSERT INTO confirms (id, claimed_name, claimed_address, source_id, temp_id, factory_id, address_id, matched_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ClaimedName, c.ClaimedAddress, c.SourceID, c.TempID, c.FactoryID, c.AddressID, c.MatchedID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, fail("postgres: insert confirm", err)
	}
	return &c, nil
}

func (s *PostgresStore) FindConfirm(ctx context.Context, tempID, matchedID string) (*model.Confirm, error) {
	var c model.Confirm
	err := s.pool.QueryRow(ctx,
		`SELECT id, claimed_name, claimed_address, source_id, temp_id, factory_id, address_id, matched_id, created_at, updated_at
		 FROM confirms WHERE temp_id = $1 AND matched_id = $2`,
		tempID, matchedID,
	).Scan(&c.ID, &c.ClaimedName, &c.ClaimedAddress, &c.SourceID, &c.TempID, &c.FactoryID, &c.AddressID, &c.MatchedID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fail("postgres: find confirm", err)
	}
	return &c, nil
}
