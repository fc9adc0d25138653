package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return true
	}
	return false
}

const userColumns = `id, name, email, password_hash, role, age, city_id, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Age,
		&u.CityID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Age, u.CityID, u.CreatedAt, u.UpdatedAt,
		)
		return e
	})

	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return user.User{}, user.ErrEmailTaken
		case IsForeignKeyViolation(err):
			return user.User{}, user.ErrCityNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_email", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	var err error

	err = r.observe("users.get_by_id", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// ListWithCity returns every user with the city reference resolved to
// {id, name}, ordered for stable output.
func (r *UsersRepo) ListWithCity(ctx context.Context) ([]user.WithCity, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("users.list_with_city", func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT u.id, u.name, u.email, u.role, u.age,
			       u.created_at, u.updated_at,
			       c.id, c.name
			FROM users u
			JOIN cities c ON c.id = u.city_id
			ORDER BY u.created_at ASC, u.id ASC
		`)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]user.WithCity, 0)

	for rows.Next() {
		var w user.WithCity

		e := rows.Scan(
			&w.ID, &w.Name, &w.Email, &w.Role, &w.Age,
			&w.CreatedAt, &w.UpdatedAt,
			&w.City.ID, &w.City.Name,
		)

		if e != nil {
			return nil, e
		}

		w.CityID = w.City.ID
		out = append(out, w)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

// Update applies a partial update built from only the provided fields.
func (r *UsersRepo) Update(ctx context.Context, id string, params user.UpdateParams) (user.User, error) {
	if params.Empty() {
		return r.GetByID(ctx, id)
	}

	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}
	pos := 2

	appendSet := func(column string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, pos))
		args = append(args, val)
		pos++
	}

	if params.Name != nil {
		appendSet("name", *params.Name)
	}

	if params.Email != nil {
		appendSet("email", *params.Email)
	}

	if params.Age != nil {
		appendSet("age", *params.Age)
	}

	if params.CityID != nil {
		appendSet("city_id", *params.CityID)
	}

	if params.Role != nil {
		appendSet("role", *params.Role)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + userColumns

	var u user.User
	var err error

	err = r.observe("users.update", func() error {
		u, err = scanUser(r.pool.QueryRow(ctx, query, args...))
		return err
	})

	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return user.User{}, user.ErrNotFound
		case IsUniqueViolation(err):
			return user.User{}, user.ErrEmailTaken
		case IsForeignKeyViolation(err):
			return user.User{}, user.ErrCityNotFound
		}
		return user.User{}, err
	}

	return u, nil
}

// Delete is idempotent: deleting an absent id is not an error.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	return r.observe("users.delete", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
}

// GroupByCity returns the users-by-city aggregate. Cities without users
// never appear because the join starts from users.
func (r *UsersRepo) GroupByCity(ctx context.Context) ([]user.CityGroup, error) {
	var rows pgx.Rows
	var err error

	err = r.observe("users.group_by_city", func() error {
		rows, err = r.pool.Query(ctx, `
			SELECT c.name, u.id, u.name, u.email, u.age
			FROM users u
			JOIN cities c ON c.id = u.city_id
			ORDER BY c.name ASC, u.created_at ASC, u.id ASC
		`)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	groups := make([]user.CityGroup, 0)

	for rows.Next() {
		var cityName string
		var m user.GroupMember

		e := rows.Scan(&cityName, &m.ID, &m.Name, &m.Email, &m.Age)

		if e != nil {
			return nil, e
		}

		if len(groups) == 0 || groups[len(groups)-1].City != cityName {
			groups = append(groups, user.CityGroup{City: cityName})
		}

		last := &groups[len(groups)-1]
		last.Users = append(last.Users, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return groups, nil
}
