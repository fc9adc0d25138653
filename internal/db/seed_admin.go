package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser bootstraps a single admin account from config. It needs
// at least one seeded city to attach the account to; until the reference
// data has been imported it logs a warning and does nothing.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, log *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	// check if the user exists already

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.AdminEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var cityID string

	err = pool.QueryRow(ctx, `SELECT id FROM cities LIMIT 1`).Scan(&cityID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("admin bootstrap skipped: no cities seeded yet", "email", cfg.AdminEmail)
			return nil
		}
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		Age:          30,
		CityID:       cityID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, age, city_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Age, u.CityID, u.CreatedAt, u.UpdatedAt,
	)

	if err == nil {
		log.Info("admin user created", "email", cfg.AdminEmail)
	}

	return err
}
