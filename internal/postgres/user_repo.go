package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ridepool/internal/domain/user"
	"ridepool/internal/ports"
)

// UserRepo resolves users and vehicles. The engine never writes either
// table; profile and vehicle management live in a separate service.
type UserRepo struct{}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo() ports.UserRepository {
	return &UserRepo{}
}

// GetByID fetches a user by primary key, or (nil, nil) when absent.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var u user.User
	err = tx.QueryRow(ctx, `
		SELECT id, uid, name, email, COALESCE(photo_url, ''), created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.UID, &u.Name, &u.Email, &u.PhotoURL, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// GetVehicle fetches a vehicle by primary key, or (nil, nil) when absent.
func (repo *UserRepo) GetVehicle(ctx context.Context, vehicleID string) (*user.Vehicle, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var v user.Vehicle
	err = tx.QueryRow(ctx, `
		SELECT id, owner_id, name, capacity
		FROM vehicles
		WHERE id = $1
	`, vehicleID).Scan(&v.ID, &v.OwnerID, &v.Name, &v.Capacity)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query vehicle: %w", err)
	}
	return &v, nil
}
