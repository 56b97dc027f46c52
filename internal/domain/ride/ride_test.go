package ride

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridepool/internal/domain/geo"
)

func newTestRide(t *testing.T) *Ride {
	t.Helper()
	route := geo.Route{
		Pickup:      geo.NewPoint(23.81, 90.41, "Dhanmondi"),
		Destination: geo.NewPoint(23.87, 90.40, "Uttara"),
	}
	r, err := New("drv-1", "veh-1", route, time.Now().Add(24*time.Hour), 3, 150, nil)
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	route := geo.Route{Pickup: geo.NewPoint(0, 0, "A"), Destination: geo.NewPoint(0, 1, "B")}
	departure := time.Now().Add(time.Hour)

	_, err := New("", "veh-1", route, departure, 2, 100, nil)
	assert.ErrorIs(t, err, ErrDriverRequired)

	_, err = New("drv-1", "", route, departure, 2, 100, nil)
	assert.ErrorIs(t, err, ErrVehicleRequired)

	_, err = New("drv-1", "veh-1", route, departure, 0, 100, nil)
	assert.ErrorIs(t, err, ErrCapacityOutOfRange)

	_, err = New("drv-1", "veh-1", route, departure, 2, -1, nil)
	assert.ErrorIs(t, err, ErrNegativePrice)

	_, err = New("drv-1", "veh-1", route, time.Time{}, 2, 100, nil)
	assert.ErrorIs(t, err, ErrDepartureZero)
}

func TestNew_EstimatesDistanceFromEndpoints(t *testing.T) {
	r := newTestRide(t)
	require.NotNil(t, r.EstimatedDistanceKM)
	assert.Greater(t, *r.EstimatedDistanceKM, 0.0)

	assert.Equal(t, StatusUpcoming, r.Status)
	assert.Equal(t, TypePublished, r.Type)
}

func TestFareAmount(t *testing.T) {
	r := newTestRide(t)

	// no per-km rate: flat price
	assert.Equal(t, 150.0, r.FareAmount())

	perKM := 20.0
	r.PricePerKM = &perKM
	dist := 6.5
	r.EstimatedDistanceKM = &dist
	assert.InDelta(t, 130.0, r.FareAmount(), 1e-9)

	// per-km rate without a known distance falls back to the flat price
	r.EstimatedDistanceKM = nil
	assert.Equal(t, 150.0, r.FareAmount())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusUpcoming.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusUpcoming.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusUpcoming.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCancelled))

	assert.False(t, StatusInProgress.CanTransitionTo(StatusUpcoming))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusUpcoming))

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusUpcoming.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestLifecycle_StartCompleteCancel(t *testing.T) {
	r := newTestRide(t)

	require.NoError(t, r.Start())
	assert.Equal(t, StatusInProgress, r.Status)

	require.NoError(t, r.Complete())
	assert.Equal(t, StatusCompleted, r.Status)

	// terminal states reject everything
	assert.ErrorIs(t, r.Start(), ErrTerminalState)
	assert.ErrorIs(t, r.Cancel(), ErrTerminalState)
	assert.ErrorIs(t, r.MarkBooked(), ErrTerminalState)
	assert.ErrorIs(t, r.RevertToPublished(), ErrTerminalState)
}

func TestLifecycle_CompleteWithoutStart(t *testing.T) {
	r := newTestRide(t)
	require.NoError(t, r.Complete())
	assert.Equal(t, StatusCompleted, r.Status)
}

func TestLifecycle_BookedAndRevert(t *testing.T) {
	r := newTestRide(t)

	require.NoError(t, r.MarkBooked())
	assert.Equal(t, TypeBooked, r.Type)
	assert.Equal(t, StatusUpcoming, r.Status, "booking never changes the status")

	require.NoError(t, r.RevertToPublished())
	assert.Equal(t, TypePublished, r.Type)
	assert.Equal(t, StatusUpcoming, r.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  in_progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("DRIVING")
	assert.Error(t, err)
}
