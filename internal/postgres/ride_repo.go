package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/ride"
	"ridepool/internal/ports"
)

// RideRepo persists rides and their route rows using pgx and plain SQL.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

// rideColumns is the fixed select list shared by every ride query: the ride
// row joined with its pickup and destination locations.
const rideColumns = `
	r.id, r.created_at, r.updated_at, r.driver_id, r.vehicle_id,
	r.departure_at, r.seat_capacity, r.price, r.price_per_km, r.estimated_distance_km,
	r.status, r.ride_type,
	p.id, p.latitude, p.longitude, p.place_name, p.address,
	d.id, d.latitude, d.longitude, d.place_name, d.address`

const rideFrom = `
	FROM rides r
	JOIN locations p ON p.id = r.pickup_location_id
	JOIN locations d ON d.id = r.destination_location_id`

// CreateRide inserts the pickup and destination locations, the ride row, and
// its waypoints as one atomic write. Must be called within a UnitOfWork.
func (repo *RideRepo) CreateRide(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	pickupID, err := insertLocation(ctx, tx, r.Route.Pickup)
	if err != nil {
		return fmt.Errorf("insert pickup location: %w", err)
	}
	destinationID, err := insertLocation(ctx, tx, r.Route.Destination)
	if err != nil {
		return fmt.Errorf("insert destination location: %w", err)
	}
	r.Route.Pickup.ID = pickupID
	r.Route.Destination.ID = destinationID

	err = tx.QueryRow(ctx, `
		INSERT INTO rides (
			driver_id, vehicle_id, pickup_location_id, destination_location_id,
			departure_at, seat_capacity, price, price_per_km, estimated_distance_km,
			status, ride_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`,
		r.DriverID,
		r.VehicleID,
		pickupID,
		destinationID,
		r.DepartureAt,
		r.SeatCapacity,
		r.Price,
		r.PricePerKM,
		r.EstimatedDistanceKM,
		r.Status.String(),
		r.Type.String(),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}

	for i := range r.Route.Waypoints {
		wp := &r.Route.Waypoints[i]
		wp.StopOrder = i + 1
		err := tx.QueryRow(ctx, `
			INSERT INTO waypoints (ride_id, stop_order, latitude, longitude, place_name, estimated_arrival)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, r.ID, wp.StopOrder, wp.Location.Latitude, wp.Location.Longitude, wp.Location.PlaceName, wp.EstimatedArrival).Scan(&wp.ID)
		if err != nil {
			return fmt.Errorf("insert waypoint %d: %w", wp.StopOrder, err)
		}
	}

	return nil
}

// GetByID fetches a ride with its route hydrated, or (nil, nil) when absent.
func (repo *RideRepo) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	return repo.getOne(ctx, id, false)
}

// GetByIDForUpdate fetches the ride like GetByID but locks the ride row for
// the remainder of the transaction. Concurrent bookers and lifecycle callers
// on the same ride queue up here.
func (repo *RideRepo) GetByIDForUpdate(ctx context.Context, id string) (*ride.Ride, error) {
	return repo.getOne(ctx, id, true)
}

func (repo *RideRepo) getOne(ctx context.Context, id string, forUpdate bool) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rideColumns + rideFrom + ` WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}

	row := tx.QueryRow(ctx, query, id)
	r, err := scanRide(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query ride: %w", err)
	}

	if err := loadWaypoints(ctx, tx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateState sets the ride's status and derived type.
func (repo *RideRepo) UpdateState(ctx context.Context, id string, status ride.Status, t ride.Type, updatedAt time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $1,
		    ride_type = $2,
		    updated_at = $3
		WHERE id = $4
	`, status.String(), t.String(), updatedAt, id)
	if err != nil {
		return fmt.Errorf("update ride state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListOpen returns non-terminal rides for discovery, newest departure last.
func (repo *RideRepo) ListOpen(ctx context.Context, q ports.RideQuery) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rideColumns + rideFrom + `
		WHERE r.status NOT IN ('COMPLETED', 'CANCELLED')`
	args := []any{}
	n := 0
	if q.ExcludeDriverID != "" {
		n++
		query += fmt.Sprintf(" AND r.driver_id <> $%d", n)
		args = append(args, q.ExcludeDriverID)
	}
	if q.DepartAfter != nil {
		n++
		query += fmt.Sprintf(" AND r.departure_at >= $%d", n)
		args = append(args, *q.DepartAfter)
	}
	query += ` ORDER BY r.departure_at ASC, r.created_at DESC`

	return repo.list(ctx, tx, query, args...)
}

// ListByDriver returns all rides published by a driver, newest first.
func (repo *RideRepo) ListByDriver(ctx context.Context, driverID string) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT` + rideColumns + rideFrom + `
		WHERE r.driver_id = $1
		ORDER BY r.departure_at DESC`

	return repo.list(ctx, tx, query, driverID)
}

func (repo *RideRepo) list(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*ride.Ride, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rides: %w", err)
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, r := range rides {
		if err := loadWaypoints(ctx, tx, r); err != nil {
			return nil, err
		}
	}

	return rides, nil
}

// --- helpers ---

func insertLocation(ctx context.Context, tx pgx.Tx, loc geo.Location) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO locations (latitude, longitude, place_name, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, loc.Latitude, loc.Longitude, loc.PlaceName, loc.Address).Scan(&id)
	return id, err
}

func loadWaypoints(ctx context.Context, tx pgx.Tx, r *ride.Ride) error {
	rows, err := tx.Query(ctx, `
		SELECT id, stop_order, latitude, longitude, place_name, estimated_arrival
		FROM waypoints
		WHERE ride_id = $1
		ORDER BY stop_order ASC
	`, r.ID)
	if err != nil {
		return fmt.Errorf("query waypoints: %w", err)
	}
	defer rows.Close()

	var wps []geo.Waypoint
	for rows.Next() {
		var wp geo.Waypoint
		var placeName *string
		if err := rows.Scan(&wp.ID, &wp.StopOrder, &wp.Location.Latitude, &wp.Location.Longitude, &placeName, &wp.EstimatedArrival); err != nil {
			return fmt.Errorf("scan waypoint: %w", err)
		}
		if placeName != nil {
			wp.Location.PlaceName = *placeName
		}
		wps = append(wps, wp)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("waypoint rows error: %w", err)
	}

	r.Route.Waypoints = wps
	return nil
}

// scanRide reads one joined ride row.
func scanRide(row pgx.Row) (*ride.Ride, error) {
	var (
		r                 ride.Ride
		status, rideType  string
		pickup, dest      geo.Location
		pickupAddr, dAddr *string
		pickupName, dName *string
	)

	err := row.Scan(
		&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.DriverID, &r.VehicleID,
		&r.DepartureAt, &r.SeatCapacity, &r.Price, &r.PricePerKM, &r.EstimatedDistanceKM,
		&status, &rideType,
		&pickup.ID, &pickup.Latitude, &pickup.Longitude, &pickupName, &pickupAddr,
		&dest.ID, &dest.Latitude, &dest.Longitude, &dName, &dAddr,
	)
	if err != nil {
		return nil, err
	}

	if pickupName != nil {
		pickup.PlaceName = *pickupName
	}
	if pickupAddr != nil {
		pickup.Address = *pickupAddr
	}
	if dName != nil {
		dest.PlaceName = *dName
	}
	if dAddr != nil {
		dest.Address = *dAddr
	}

	r.Status = ride.Status(status)
	r.Type = ride.Type(rideType)
	r.Route.Pickup = pickup
	r.Route.Destination = dest

	return &r, nil
}
