package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ridepool/internal/domain/booking"
	"ridepool/internal/ports"
)

// BookingRepo persists bookings using pgx and plain SQL.
type BookingRepo struct{}

// NewBookingRepo constructs a new BookingRepo.
func NewBookingRepo() ports.BookingRepository {
	return &BookingRepo{}
}

const bookingColumns = `
	id, created_at, ride_id, passenger_id, driver_id, passenger_count,
	source, destination, status, payment_status, payment_amount, special_requests`

// Create inserts a new booking row. Must run inside the same transaction as
// the capacity re-check; the ride row lock taken there guards this insert.
func (repo *BookingRepo) Create(ctx context.Context, b *booking.Booking) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (
			ride_id, passenger_id, driver_id, passenger_count,
			source, destination, status, payment_status, payment_amount, special_requests
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`,
		b.RideID,
		b.PassengerID,
		b.DriverID,
		b.PassengerCount,
		b.Source,
		b.Destination,
		b.Status.String(),
		b.PaymentStatus.String(),
		b.PaymentAmount,
		b.SpecialRequests,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetByID fetches a booking by primary key, or (nil, nil) when absent.
func (repo *BookingRepo) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query booking: %w", err)
	}
	return b, nil
}

// ListByRide returns every booking on a ride, oldest first. Together with the
// locked ride row this gives the consistent ride+bookings read the capacity
// re-check needs.
func (repo *BookingRepo) ListByRide(ctx context.Context, rideID string) ([]*booking.Booking, error) {
	return repo.list(ctx, `SELECT`+bookingColumns+`
		FROM bookings
		WHERE ride_id = $1
		ORDER BY created_at ASC`, rideID)
}

// ListByPassenger returns a passenger's bookings, newest first.
func (repo *BookingRepo) ListByPassenger(ctx context.Context, passengerID string) ([]*booking.Booking, error) {
	return repo.list(ctx, `SELECT`+bookingColumns+`
		FROM bookings
		WHERE passenger_id = $1
		ORDER BY created_at DESC`, passengerID)
}

// UpdateState sets a booking's status and payment status.
func (repo *BookingRepo) UpdateState(ctx context.Context, id string, status booking.Status, payment booking.PaymentStatus) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    payment_status = $2
		WHERE id = $3
	`, status.String(), payment.String(), id)
	if err != nil {
		return fmt.Errorf("update booking state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (repo *BookingRepo) list(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var (
		b               booking.Booking
		status, payment string
	)
	err := row.Scan(
		&b.ID, &b.CreatedAt, &b.RideID, &b.PassengerID, &b.DriverID, &b.PassengerCount,
		&b.Source, &b.Destination, &status, &payment, &b.PaymentAmount, &b.SpecialRequests,
	)
	if err != nil {
		return nil, err
	}
	b.Status = booking.Status(status)
	b.PaymentStatus = booking.PaymentStatus(payment)
	return &b, nil
}
