package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/userhub/internal/domain/location"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LocationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewLocationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *LocationsRepo {
	return &LocationsRepo{pool: pool, prom: prom}
}

func (r *LocationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *LocationsRepo) ListCountries(ctx context.Context) ([]location.Country, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("locations.list_countries", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, code, created_at, updated_at FROM countries ORDER BY name ASC`)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]location.Country, 0)

	for rows.Next() {
		var c location.Country

		e := rows.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt, &c.UpdatedAt)

		if e != nil {
			return nil, e
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// ListStatesByCountry returns an empty slice (not an error) for a country
// with no states.
func (r *LocationsRepo) ListStatesByCountry(ctx context.Context, countryID string) ([]location.State, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("locations.list_states", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, country_id, created_at, updated_at
			 FROM states WHERE country_id = $1 ORDER BY name ASC`, countryID)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]location.State, 0)

	for rows.Next() {
		var s location.State

		e := rows.Scan(&s.ID, &s.Name, &s.CountryID, &s.CreatedAt, &s.UpdatedAt)

		if e != nil {
			return nil, e
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

func (r *LocationsRepo) ListCitiesByState(ctx context.Context, stateID string) ([]location.City, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("locations.list_cities", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT id, name, state_id, created_at, updated_at
			 FROM cities WHERE state_id = $1 ORDER BY name ASC`, stateID)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]location.City, 0)

	for rows.Next() {
		var c location.City

		e := rows.Scan(&c.ID, &c.Name, &c.StateID, &c.CreatedAt, &c.UpdatedAt)

		if e != nil {
			return nil, e
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

func (r *LocationsRepo) GetCountry(ctx context.Context, id string) (location.Country, error) {
	var c location.Country
	var err error

	err = r.observe("locations.get_country", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, code, created_at, updated_at FROM countries WHERE id = $1`, id,
		).Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt, &c.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return location.Country{}, location.ErrCountryNotFound
		}
		return location.Country{}, err
	}

	return c, nil
}

func (r *LocationsRepo) GetState(ctx context.Context, id string) (location.State, error) {
	var s location.State
	var err error

	err = r.observe("locations.get_state", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, country_id, created_at, updated_at FROM states WHERE id = $1`, id,
		).Scan(&s.ID, &s.Name, &s.CountryID, &s.CreatedAt, &s.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return location.State{}, location.ErrStateNotFound
		}
		return location.State{}, err
	}

	return s, nil
}

func (r *LocationsRepo) GetCity(ctx context.Context, id string) (location.City, error) {
	var c location.City
	var err error

	err = r.observe("locations.get_city", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, state_id, created_at, updated_at FROM cities WHERE id = $1`, id,
		).Scan(&c.ID, &c.Name, &c.StateID, &c.CreatedAt, &c.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return location.City{}, location.ErrCityNotFound
		}
		return location.City{}, err
	}

	return c, nil
}

// Seeder-side bulk operations.

// TruncateAll clears the reference hierarchy before a fresh import.
// Deletes run child-first; if users still reference a city the FK
// violation surfaces instead of silently wiping accounts.
func (r *LocationsRepo) TruncateAll(ctx context.Context) error {
	return r.observe("locations.truncate_all", func() error {
		for _, table := range []string{"cities", "states", "countries"} {
			if _, err := r.pool.Exec(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *LocationsRepo) InsertCountries(ctx context.Context, countries []location.Country) (int64, error) {
	rows := make([][]interface{}, 0, len(countries))

	for _, c := range countries {
		rows = append(rows, []interface{}{c.ID, c.Name, c.Code, c.CreatedAt, c.UpdatedAt})
	}

	var copied int64
	var err error

	err = r.observe("locations.insert_countries", func() error {
		copied, err = r.pool.CopyFrom(ctx,
			pgx.Identifier{"countries"},
			[]string{"id", "name", "code", "created_at", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		return err
	})

	return copied, err
}

func (r *LocationsRepo) InsertStates(ctx context.Context, states []location.State) (int64, error) {
	rows := make([][]interface{}, 0, len(states))

	for _, s := range states {
		rows = append(rows, []interface{}{s.ID, s.Name, s.CountryID, s.CreatedAt, s.UpdatedAt})
	}

	var copied int64
	var err error

	err = r.observe("locations.insert_states", func() error {
		copied, err = r.pool.CopyFrom(ctx,
			pgx.Identifier{"states"},
			[]string{"id", "name", "country_id", "created_at", "updated_at"},
			pgx.CopyFromRows(rows),
		)
		return err
	})

	return copied, err
}

// InsertCities inserts one row at a time through a pipelined batch so a
// bad row skips, not aborts, the rest of the batch.
func (r *LocationsRepo) InsertCities(ctx context.Context, cities []location.City) (inserted int, failed int, err error) {
	if len(cities) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}

	for _, c := range cities {
		batch.Queue(
			`INSERT INTO cities (id, name, state_id, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5)
			 ON CONFLICT DO NOTHING`,
			c.ID, c.Name, c.StateID, c.CreatedAt, c.UpdatedAt,
		)
	}

	err = r.observe("locations.insert_cities", func() error {
		results := r.pool.SendBatch(ctx, batch)
		defer results.Close()

		for range cities {
			_, execErr := results.Exec()

			if execErr != nil {
				failed++
				continue
			}
			inserted++
		}

		return nil
	})

	return inserted, failed, err
}
