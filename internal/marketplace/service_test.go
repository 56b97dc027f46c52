package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ridepool/internal/domain/booking"
	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/ride"
	"ridepool/internal/domain/user"
	"ridepool/internal/fault"
	"ridepool/internal/ports"
)

// --- in-memory fakes ---
//
// The fake unit of work serializes every transaction behind one mutex, which
// models the row lock the Postgres repositories take with FOR UPDATE: two
// concurrent booking transactions on the same ride never interleave.

type fakeStore struct {
	mu       sync.Mutex
	rides    map[string]*ride.Ride
	bookings map[string]*booking.Booking
	users    map[string]*user.User
	vehicles map[string]*user.Vehicle
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rides:    make(map[string]*ride.Ride),
		bookings: make(map[string]*booking.Booking),
		users:    make(map[string]*user.User),
		vehicles: make(map[string]*user.Vehicle),
	}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type fakeUOW struct{ store *fakeStore }

type txMarker struct{}

func (u *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(context.WithValue(ctx, txMarker{}, struct{}{}))
}

type fakeRideRepo struct{ store *fakeStore }

func (r *fakeRideRepo) CreateRide(_ context.Context, rd *ride.Ride) error {
	rd.ID = r.store.nextID("ride")
	cp := *rd
	r.store.rides[rd.ID] = &cp
	return nil
}

func (r *fakeRideRepo) GetByID(_ context.Context, id string) (*ride.Ride, error) {
	rd, ok := r.store.rides[id]
	if !ok {
		return nil, nil
	}
	cp := *rd
	return &cp, nil
}

func (r *fakeRideRepo) GetByIDForUpdate(ctx context.Context, id string) (*ride.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeRideRepo) UpdateState(_ context.Context, id string, status ride.Status, t ride.Type, updatedAt time.Time) error {
	rd, ok := r.store.rides[id]
	if !ok {
		return fmt.Errorf("ride %s not found", id)
	}
	rd.Status = status
	rd.Type = t
	rd.UpdatedAt = updatedAt
	return nil
}

func (r *fakeRideRepo) ListOpen(_ context.Context, q ports.RideQuery) ([]*ride.Ride, error) {
	var out []*ride.Ride
	for _, rd := range r.store.rides {
		if rd.Status.Terminal() {
			continue
		}
		if q.ExcludeDriverID != "" && rd.DriverID == q.ExcludeDriverID {
			continue
		}
		if q.DepartAfter != nil && rd.DepartureAt.Before(*q.DepartAfter) {
			continue
		}
		cp := *rd
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRideRepo) ListByDriver(_ context.Context, driverID string) ([]*ride.Ride, error) {
	var out []*ride.Ride
	for _, rd := range r.store.rides {
		if rd.DriverID == driverID {
			cp := *rd
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeBookingRepo struct{ store *fakeStore }

func (r *fakeBookingRepo) Create(_ context.Context, b *booking.Booking) error {
	b.ID = r.store.nextID("bkg")
	cp := *b
	r.store.bookings[b.ID] = &cp
	return nil
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	b, ok := r.store.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) ListByRide(_ context.Context, rideID string) ([]*booking.Booking, error) {
	var out []*booking.Booking
	for _, b := range r.store.bookings {
		if b.RideID == rideID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) ListByPassenger(_ context.Context, passengerID string) ([]*booking.Booking, error) {
	var out []*booking.Booking
	for _, b := range r.store.bookings {
		if b.PassengerID == passengerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeBookingRepo) UpdateState(_ context.Context, id string, status booking.Status, payment booking.PaymentStatus) error {
	b, ok := r.store.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s not found", id)
	}
	b.Status = status
	b.PaymentStatus = payment
	return nil
}

type fakeUserRepo struct{ store *fakeStore }

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetVehicle(_ context.Context, vehicleID string) (*user.Vehicle, error) {
	v, ok := r.store.vehicles[vehicleID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.invalidated = append(c.invalidated, k)
	}
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	routingKey string
	payload    any
}

func (e *fakeEvents) Publish(_ context.Context, routingKey string, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{routingKey, event})
	return nil
}

func (e *fakeEvents) routingKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, len(e.events))
	for i, ev := range e.events {
		keys[i] = ev.routingKey
	}
	return keys
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]any
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{sent: make(map[string][]any)} }

func (n *fakeNotifier) Notify(userID string, event any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[userID] = append(n.sent[userID], event)
}

// --- fixture ---

type fixture struct {
	svc      *Service
	store    *fakeStore
	cache    *fakeCache
	events   *fakeEvents
	notifier *fakeNotifier
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	store := newFakeStore()
	c := newFakeCache()
	ev := &fakeEvents{}
	nt := newFakeNotifier()

	svc := NewService(
		zap.NewNop(),
		&fakeUOW{store: store},
		&fakeRideRepo{store: store},
		&fakeBookingRepo{store: store},
		&fakeUserRepo{store: store},
		c, ev, nt, policy,
	)
	return &fixture{svc: svc, store: store, cache: c, events: ev, notifier: nt}
}

func (f *fixture) addUser(id string) {
	f.store.users[id] = &user.User{ID: id, UID: "uid-" + id, Name: id, Email: id + "@test.local"}
}

func (f *fixture) addVehicle(id, ownerID string, capacity int) {
	f.store.vehicles[id] = &user.Vehicle{ID: id, OwnerID: ownerID, Name: "Car " + id, Capacity: capacity}
}

// seedRide publishes a ride for drv-1 with the given capacity, departing in
// 24h, and returns its ID.
func (f *fixture) seedRide(t *testing.T, capacity int) string {
	t.Helper()
	f.addUser("drv-1")
	f.addVehicle("veh-1", "drv-1", capacity)

	published, err := f.svc.PublishRide(context.Background(), PublishRequest{
		DriverID:    "drv-1",
		VehicleID:   "veh-1",
		Pickup:      geo.NewPoint(23.81, 90.41, "Dhanmondi"),
		Destination: geo.NewPoint(23.87, 90.40, "Uttara"),
		DepartureAt: time.Now().Add(24 * time.Hour),
		Capacity:    capacity,
		Price:       100,
	})
	require.NoError(t, err)
	return published.ID
}

func (f *fixture) book(t *testing.T, rideID, passengerID string, seats int) *booking.Booking {
	t.Helper()
	f.addUser(passengerID)
	b, err := f.svc.BookRide(context.Background(), BookRequest{
		RideID:      rideID,
		PassengerID: passengerID,
		Seats:       seats,
	})
	require.NoError(t, err)
	return b
}

// cancel runs the single cancellation entry point, expecting success, and
// returns the role that performed it.
func (f *fixture) cancel(t *testing.T, rideID, callerID string, hint *user.Role) user.Role {
	t.Helper()
	role, err := f.svc.CancelRide(context.Background(), rideID, callerID, hint)
	require.NoError(t, err)
	return role
}

// --- publish ---

func TestPublishRide(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addUser("drv-1")
	f.addVehicle("veh-1", "drv-1", 4)

	perKM := 20.0
	published, err := f.svc.PublishRide(context.Background(), PublishRequest{
		DriverID:    "drv-1",
		VehicleID:   "veh-1",
		Pickup:      geo.NewPoint(23.81, 90.41, "Dhanmondi"),
		Destination: geo.NewPoint(23.87, 90.40, "Uttara"),
		Waypoints: []geo.Waypoint{
			{Location: geo.NewPoint(23.84, 90.405, "Farmgate")},
			{Location: geo.NewPoint(23.8101, 90.4101, "Dhanmondi again")}, // dup of pickup
		},
		DepartureAt: time.Now().Add(2 * time.Hour),
		Capacity:    3,
		Price:       100,
		PricePerKM:  &perKM,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, published.ID)
	assert.Equal(t, ride.StatusUpcoming, published.Status)
	assert.Equal(t, ride.TypePublished, published.Type)
	assert.Len(t, published.Route.Waypoints, 1, "waypoints duplicating endpoints are dropped")
	assert.Equal(t, []string{"ride.published"}, f.events.routingKeys())
	assert.Contains(t, f.cache.invalidated, "user:drv-1:driver-rides")
}

func TestPublishRide_CapacityExceedsVehicle(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addUser("drv-1")
	f.addVehicle("veh-1", "drv-1", 2)

	_, err := f.svc.PublishRide(context.Background(), PublishRequest{
		DriverID:    "drv-1",
		VehicleID:   "veh-1",
		Pickup:      geo.NewPoint(0, 0, "A"),
		Destination: geo.NewPoint(0, 1, "B"),
		DepartureAt: time.Now().Add(time.Hour),
		Capacity:    5,
		Price:       50,
	})
	assert.True(t, fault.IsCode(err, fault.CodeCapacityExceedsVehicle))
}

func TestPublishRide_ForeignVehicleRejected(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addUser("drv-1")
	f.addUser("drv-2")
	f.addVehicle("veh-2", "drv-2", 4)

	_, err := f.svc.PublishRide(context.Background(), PublishRequest{
		DriverID:    "drv-1",
		VehicleID:   "veh-2",
		Pickup:      geo.NewPoint(0, 0, "A"),
		Destination: geo.NewPoint(0, 1, "B"),
		DepartureAt: time.Now().Add(time.Hour),
		Capacity:    2,
		Price:       50,
	})
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))
}

// --- booking ---

func TestBookRide(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)

	b := f.book(t, rideID, "pass-1", 2)

	assert.Equal(t, "drv-1", b.DriverID, "driver is denormalized from the ride")
	assert.Equal(t, 2, b.Seats())
	assert.Equal(t, booking.StatusOngoing, b.Status)
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus)
	assert.Equal(t, 100.0, b.PaymentAmount, "fare is per booking, not per seat")

	stored := f.store.rides[rideID]
	assert.Equal(t, ride.TypeBooked, stored.Type)
	assert.Equal(t, ride.StatusUpcoming, stored.Status)

	assert.Contains(t, f.events.routingKeys(), "booking.created")
	assert.Contains(t, f.cache.invalidated, "user:drv-1:driver-rides")
	assert.Contains(t, f.cache.invalidated, "user:pass-1:passenger-bookings")
	assert.Len(t, f.notifier.sent["drv-1"], 1, "driver is notified of the new booking")
}

func TestBookRide_DriverCannotBookOwnRide(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)

	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "drv-1", Seats: 1})
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))
}

func TestBookRide_UnknownRideAndPassenger(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)

	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "ghost", Seats: 1})
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
	assert.Contains(t, fault.FromError(err).Message, "passenger")

	f.addUser("pass-1")
	_, err = f.svc.BookRide(context.Background(), BookRequest{RideID: "nope", PassengerID: "pass-1", Seats: 1})
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
	assert.Contains(t, fault.FromError(err).Message, "ride")

	// with both unknown, the missing ride is reported
	_, err = f.svc.BookRide(context.Background(), BookRequest{RideID: "nope", PassengerID: "ghost", Seats: 1})
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
	assert.Contains(t, fault.FromError(err).Message, "ride")
}

func TestBookRide_DuplicateActiveBookingRejected(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	f.book(t, rideID, "pass-1", 1)

	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-1", Seats: 1})
	assert.True(t, fault.IsCode(err, fault.CodeAlreadyBooked))

	// after cancelling, the same passenger may book again
	f.cancel(t, rideID, "pass-1", nil)
	f.book(t, rideID, "pass-1", 1)
}

func TestBookRide_InsufficientCapacity(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.book(t, rideID, "pass-1", 1)

	f.addUser("pass-2")
	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-2", Seats: 2})
	require.True(t, fault.IsCode(err, fault.CodeInsufficientCapacity))
	assert.Contains(t, fault.FromError(err).Message, "1 remaining", "error reports the live remaining count")
}

func TestBookRide_PastRidePolicy(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.addUser("pass-1")

	// move the clock past the departure
	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-1", Seats: 1})
	assert.True(t, fault.IsCode(err, fault.CodePastRide))

	// with the toggle on, the same booking goes through
	f.svc.policy.AllowPastRideBooking = true
	_, err = f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-1", Seats: 1})
	assert.NoError(t, err)
}

func TestBookRide_ConflictsOutrankPastRide(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.book(t, rideID, "pass-1", 1)

	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	// the duplicate conflict is reported before the departed-ride rejection
	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-1", Seats: 1})
	assert.True(t, fault.IsCode(err, fault.CodeAlreadyBooked))

	// so is the capacity conflict
	f.addUser("pass-2")
	_, err = f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-2", Seats: 2})
	assert.True(t, fault.IsCode(err, fault.CodeInsufficientCapacity))
}

func TestBookRide_TerminalRideRejected(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.cancel(t, rideID, "drv-1", nil)

	f.addUser("pass-1")
	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-1", Seats: 1})
	assert.True(t, fault.IsCode(err, fault.CodeTerminalRide))
}

func TestBookRide_ConcurrentBookersNeverOversell(t *testing.T) {
	const capacity = 3
	const bookers = 10

	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, capacity)
	for i := 0; i < bookers; i++ {
		f.addUser(fmt.Sprintf("pass-%d", i))
	}

	errs := make([]error, bookers)
	var wg sync.WaitGroup
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.BookRide(context.Background(), BookRequest{
				RideID:      rideID,
				PassengerID: fmt.Sprintf("pass-%d", i),
				Seats:       1,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, fault.IsCode(err, fault.CodeInsufficientCapacity), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, succeeded, "exactly capacity bookings may succeed")

	held := 0
	for _, b := range f.store.bookings {
		if b.Active() {
			held += b.Seats()
		}
	}
	assert.Equal(t, capacity, held)
}

// --- lifecycle ---

func TestStartRide(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	f.book(t, rideID, "pass-1", 1)

	_, err := f.svc.StartRide(context.Background(), rideID, "pass-1")
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch), "only the driver may start")

	started, err := f.svc.StartRide(context.Background(), rideID, "drv-1")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInProgress, started.Status)
	assert.Contains(t, f.events.routingKeys(), "ride.started")
	assert.NotEmpty(t, f.notifier.sent["pass-1"])
}

func TestCompleteRide_CascadesToBookings(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	b1 := f.book(t, rideID, "pass-1", 1)
	b2 := f.book(t, rideID, "pass-2", 2)
	f.cancel(t, rideID, "pass-2", nil)

	completed, err := f.svc.CompleteRide(context.Background(), rideID, "drv-1")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, completed.Status)

	// active booking settled
	assert.Equal(t, booking.StatusCompleted, f.store.bookings[b1.ID].Status)
	assert.Equal(t, booking.PaymentCompleted, f.store.bookings[b1.ID].PaymentStatus)

	// cancelled booking keeps its refund
	assert.Equal(t, booking.StatusCancelled, f.store.bookings[b2.ID].Status)
	assert.Equal(t, booking.PaymentRefunded, f.store.bookings[b2.ID].PaymentStatus)

	assert.Contains(t, f.events.routingKeys(), "ride.completed")

	// completing again is rejected
	_, err = f.svc.CompleteRide(context.Background(), rideID, "drv-1")
	assert.True(t, fault.IsCode(err, fault.CodeTerminalRide))
}

func TestCancelRide_DriverCancelsEverything(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	b1 := f.book(t, rideID, "pass-1", 1)
	b2 := f.book(t, rideID, "pass-2", 1)

	cancelledBy := f.cancel(t, rideID, "drv-1", nil)
	assert.Equal(t, user.RoleDriver, cancelledBy)

	assert.Equal(t, ride.StatusCancelled, f.store.rides[rideID].Status)
	assert.Equal(t, booking.StatusCancelled, f.store.bookings[b1.ID].Status)
	assert.Equal(t, booking.PaymentRefunded, f.store.bookings[b1.ID].PaymentStatus)
	assert.Equal(t, booking.StatusCancelled, f.store.bookings[b2.ID].Status)

	assert.Contains(t, f.events.routingKeys(), "ride.cancelled")
	assert.NotEmpty(t, f.notifier.sent["pass-1"])
	assert.NotEmpty(t, f.notifier.sent["pass-2"])
}

func TestCancelRide_PassengerCancelsOwnBookingOnly(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	b1 := f.book(t, rideID, "pass-1", 1)
	b2 := f.book(t, rideID, "pass-2", 1)

	cancelledBy := f.cancel(t, rideID, "pass-1", nil)
	assert.Equal(t, user.RolePassenger, cancelledBy)

	// the other booking and the ride survive
	assert.Equal(t, booking.StatusCancelled, f.store.bookings[b1.ID].Status)
	assert.Equal(t, booking.StatusOngoing, f.store.bookings[b2.ID].Status)
	assert.Equal(t, ride.StatusUpcoming, f.store.rides[rideID].Status)
	assert.Equal(t, ride.TypeBooked, f.store.rides[rideID].Type, "still has an active booking")

	assert.Contains(t, f.events.routingKeys(), "booking.cancelled")
	assert.NotEmpty(t, f.notifier.sent["drv-1"])
}

func TestCancelRide_LastPassengerRevertsRideToPublished(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.book(t, rideID, "pass-1", 1)
	f.book(t, rideID, "pass-2", 1)

	f.cancel(t, rideID, "pass-1", nil)
	assert.Equal(t, ride.TypeBooked, f.store.rides[rideID].Type)

	f.cancel(t, rideID, "pass-2", nil)
	assert.Equal(t, ride.TypePublished, f.store.rides[rideID].Type)
	assert.Equal(t, ride.StatusUpcoming, f.store.rides[rideID].Status)

	// the ride is bookable again
	f.addUser("pass-3")
	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-3", Seats: 2})
	assert.NoError(t, err)
}

func TestCancelRide_RoleHintIsCheckedNotTrusted(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	f.book(t, rideID, "pass-1", 1)

	driver := user.RoleDriver
	passenger := user.RolePassenger

	// passenger asserting DRIVER does not cancel the ride
	_, err := f.svc.CancelRide(context.Background(), rideID, "pass-1", &driver)
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))
	assert.Equal(t, ride.StatusUpcoming, f.store.rides[rideID].Status)

	// driver asserting PASSENGER is equally rejected
	_, err = f.svc.CancelRide(context.Background(), rideID, "drv-1", &passenger)
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))

	// matching hints work
	assert.Equal(t, user.RolePassenger, f.cancel(t, rideID, "pass-1", &passenger))
	assert.Equal(t, user.RoleDriver, f.cancel(t, rideID, "drv-1", &driver))
}

func TestCancelRide_BystanderIsForbidden(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)
	b := f.book(t, rideID, "pass-1", 1)

	// neither the driver nor an active passenger
	f.addUser("stranger")
	_, err := f.svc.CancelRide(context.Background(), rideID, "stranger", nil)
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))

	// an asserted role does not buy a relationship the caller lacks
	passenger := user.RolePassenger
	_, err = f.svc.CancelRide(context.Background(), rideID, "stranger", &passenger)
	assert.True(t, fault.IsCode(err, fault.CodeRoleMismatch))

	// nothing was touched
	assert.Equal(t, ride.StatusUpcoming, f.store.rides[rideID].Status)
	assert.Equal(t, booking.StatusOngoing, f.store.bookings[b.ID].Status)
}

func TestCancelRide_TerminalRideRejected(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 3)

	f.cancel(t, rideID, "drv-1", nil)
	_, err := f.svc.CancelRide(context.Background(), rideID, "drv-1", nil)
	assert.True(t, fault.IsCode(err, fault.CodeTerminalRide))
}

// --- discovery ---

func TestFindMatchingRides(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)

	f.addUser("pass-1")
	pickup := geo.NewPoint(23.82, 90.408, "Kalabagan")
	dest := geo.NewPoint(23.868, 90.401, "Uttara-ish")

	matches, err := f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{
		PassengerID: "pass-1",
		Pickup:      &pickup,
		Destination: &dest,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rideID, matches[0].Ride.ID)
	assert.Equal(t, 2, matches[0].SeatsRemaining)

	// the driver's own search never returns their ride
	matches, err = f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "drv-1"})
	require.NoError(t, err)
	assert.Empty(t, matches)

	// a fully booked ride drops out
	f.book(t, rideID, "pass-1", 2)
	matches, err = f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "pass-2"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchingRides_PriceCapUsesFare(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedRide(t, 2) // flat price 100

	f.addUser("pass-1")

	maxPrice := 50.0
	matches, err := f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "pass-1", MaxPrice: &maxPrice})
	require.NoError(t, err)
	assert.Empty(t, matches)

	maxPrice = 100.0
	matches, err = f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "pass-1", MaxPrice: &maxPrice})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestFindMatchingRides_ExcludesDepartedRides(t *testing.T) {
	f := newFixture(t, Policy{})
	f.seedRide(t, 2) // departs in 24h

	f.addUser("pass-1")
	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	matches, err := f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "pass-1"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchingRides_PastRideToggleKeepsDepartedVisible(t *testing.T) {
	f := newFixture(t, Policy{AllowPastRideBooking: true})
	rideID := f.seedRide(t, 2)

	f.addUser("pass-1")
	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	// bookable past rides stay discoverable
	matches, err := f.svc.FindMatchingRides(context.Background(), DiscoveryQuery{PassengerID: "pass-1"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rideID, matches[0].Ride.ID)
}

// --- read cache ---

func TestListDriverRides_ReadThroughCache(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)

	// first read hydrates the cache
	rides, err := f.svc.ListDriverRides(context.Background(), "drv-1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Contains(t, f.cache.entries, "user:drv-1:driver-rides")

	// a direct store change is invisible while the entry lives
	f.store.rides[rideID].Price = 999
	rides, err = f.svc.ListDriverRides(context.Background(), "drv-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, rides[0].Price, "served from cache")

	// a booking invalidates the entry; the next read sees fresh data
	f.book(t, rideID, "pass-1", 1)
	rides, err = f.svc.ListDriverRides(context.Background(), "drv-1")
	require.NoError(t, err)
	assert.Equal(t, 999.0, rides[0].Price)
}

func TestListPassengerBookings_InvalidatedOnCancel(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)
	f.book(t, rideID, "pass-1", 1)

	bookings, err := f.svc.ListPassengerBookings(context.Background(), "pass-1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Contains(t, f.cache.entries, "user:pass-1:passenger-bookings")

	f.cancel(t, rideID, "pass-1", nil)
	assert.NotContains(t, f.cache.entries, "user:pass-1:passenger-bookings")

	bookings, err = f.svc.ListPassengerBookings(context.Background(), "pass-1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, booking.StatusCancelled, bookings[0].Status)
}

// --- end to end ---

func TestCapacityTwoScenario(t *testing.T) {
	f := newFixture(t, Policy{})
	rideID := f.seedRide(t, 2)

	f.book(t, rideID, "pass-1", 1)
	f.book(t, rideID, "pass-2", 1)

	// full: a third passenger is turned away
	f.addUser("pass-3")
	_, err := f.svc.BookRide(context.Background(), BookRequest{RideID: rideID, PassengerID: "pass-3", Seats: 1})
	require.True(t, fault.IsCode(err, fault.CodeInsufficientCapacity))
	assert.Contains(t, fault.FromError(err).Message, "0 remaining")

	// one seat frees up and the third passenger gets in
	f.cancel(t, rideID, "pass-1", nil)
	f.book(t, rideID, "pass-3", 1)

	summary, err := f.svc.GetRide(context.Background(), rideID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SeatsRemaining)
	assert.Equal(t, ride.TypeBooked, summary.Ride.Type)
}
