package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core/ride"
)

type dbRide struct {
	ID                string         `db:"id"`
	EventID           string         `db:"event_id"`
	DriverID          string         `db:"driver_id"`
	DriverPersonID    string         `db:"driver_person_id"`
	SeatsAvailable    int            `db:"seats_available"`
	DepartureLocation sql.NullString `db:"departure_location"`
	DepartureAt       sql.NullTime   `db:"departure_at"`
	Relation          string         `db:"relation"`
	Restricted        bool           `db:"restricted"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r dbRide) toCore() ride.Ride {
	return ride.Ride{
		ID:                r.ID,
		EventID:           r.EventID,
		DriverID:          r.DriverID,
		DriverPersonID:    r.DriverPersonID,
		SeatsAvailable:    r.SeatsAvailable,
		DepartureLocation: r.DepartureLocation.String,
		DepartureAt:       r.DepartureAt.Time,
		Relation:          ride.Relation(r.Relation),
		Restricted:        r.Restricted,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func newDBRide(r ride.Ride) dbRide {
	return dbRide{
		ID:                r.ID,
		EventID:           r.EventID,
		DriverID:          r.DriverID,
		DriverPersonID:    r.DriverPersonID,
		SeatsAvailable:    r.SeatsAvailable,
		DepartureLocation: sql.NullString{String: r.DepartureLocation, Valid: r.DepartureLocation != ""},
		DepartureAt:       sql.NullTime{Time: r.DepartureAt.UTC(), Valid: !r.DepartureAt.IsZero()},
		Relation:          string(r.Relation),
		Restricted:        r.Restricted,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

type dbPassenger struct {
	RideID    string    `db:"ride_id"`
	PersonID  string    `db:"person_id"`
	Kind      string    `db:"kind"`
	SeatCount int       `db:"seat_count"`
	CreatedAt time.Time `db:"created_at"`
}

func (p dbPassenger) toCore() ride.Passenger {
	return ride.Passenger{
		RideID:    p.RideID,
		PersonID:  p.PersonID,
		Kind:      ride.PersonKind(p.Kind),
		SeatCount: p.SeatCount,
		CreatedAt: p.CreatedAt,
	}
}

type rideRepository struct {
	db *sqlx.DB
}

var _ ride.Repository = (*rideRepository)(nil) // interface compliance check

func NewRideRepository(db *sqlx.DB) *rideRepository {
	return &rideRepository{db: db}
}

func (repo rideRepository) CreateRide(ctx context.Context, r ride.Ride, anchor ride.Passenger) (ride.Ride, error) {
	r.ID = uuid.New().String()
	anchor.RideID = r.ID
	row := newDBRide(r)

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return ride.Ride{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
INSERT INTO ride (id, event_id, driver_id, driver_person_id, seats_available, departure_location,
                  departure_at, relation, restricted, created_at, updated_at)
VALUES (:id, :event_id, :driver_id, :driver_person_id, :seats_available, :departure_location,
        :departure_at, :relation, :restricted, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err, "ride_event_id_driver_id_key") {
			return ride.Ride{}, ride.ErrDuplicateRide
		}
		return ride.Ride{}, errors.Wrap(err, "inserting ride")
	}

	aq := `INSERT INTO passenger (ride_id, person_id, kind, seat_count, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, aq, anchor.RideID, anchor.PersonID, string(anchor.Kind), anchor.SeatCount, anchor.CreatedAt.UTC()); err != nil {
		return ride.Ride{}, errors.Wrap(err, "inserting anchor passenger")
	}

	if err = tx.Commit(); err != nil {
		return ride.Ride{}, errors.Wrap(err, "committing tx")
	}
	return row.toCore(), nil
}

func (repo rideRepository) GetRideByID(ctx context.Context, id string) (ride.Ride, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ride.Ride{}, ride.ErrNotFound
	}
	var row dbRide
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM ride WHERE id = $1`, id); err != nil {
		return ride.Ride{}, trapNoRowsErr(err, ride.ErrNotFound, "finding ride by ID")
	}
	return row.toCore(), nil
}

func (repo rideRepository) QueryRidesByEvent(ctx context.Context, eventID string) ([]ride.Ride, error) {
	var rows []dbRide
	q := `SELECT * FROM ride WHERE event_id = $1 ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, q, eventID); err != nil {
		return nil, errors.Wrap(err, "querying rides")
	}
	rides := make([]ride.Ride, 0, len(rows))
	for _, row := range rows {
		rides = append(rides, row.toCore())
	}
	return rides, nil
}

func (repo rideRepository) QueryPassengers(ctx context.Context, rideID string) ([]ride.Passenger, error) {
	var rows []dbPassenger
	q := `SELECT * FROM passenger WHERE ride_id = $1 ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, q, rideID); err != nil {
		return nil, errors.Wrap(err, "querying passengers")
	}
	passengers := make([]ride.Passenger, 0, len(rows))
	for _, row := range rows {
		passengers = append(passengers, row.toCore())
	}
	return passengers, nil
}

// AddPassenger inserts the rider inside a transaction that locks the ride row,
// so two concurrent joins cannot both pass the capacity check.
func (repo rideRepository) AddPassenger(ctx context.Context, rideID string, p ride.Passenger) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	var r dbRide
	if err = tx.GetContext(ctx, &r, `SELECT * FROM ride WHERE id = $1 FOR UPDATE`, rideID); err != nil {
		return trapNoRowsErr(err, ride.ErrNotFound, "locking ride")
	}
	if r.Restricted {
		return ride.ErrRideFull
	}

	var taken int
	q := `SELECT COALESCE(SUM(seat_count), 0) FROM passenger WHERE ride_id = $1 AND person_id <> $2`
	if err = tx.GetContext(ctx, &taken, q, rideID, r.DriverPersonID); err != nil {
		return errors.Wrap(err, "counting seats")
	}
	if taken+p.SeatCount > r.SeatsAvailable {
		return ride.ErrRideFull
	}

	iq := `INSERT INTO passenger (ride_id, person_id, kind, seat_count, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, iq, rideID, p.PersonID, string(p.Kind), p.SeatCount, p.CreatedAt.UTC()); err != nil {
		if isUniqueViolation(err, "passenger_pkey") {
			return ride.ErrAlreadyOnRide
		}
		return errors.Wrap(err, "inserting passenger")
	}
	return errors.Wrap(tx.Commit(), "committing tx")
}

func (repo rideRepository) RemovePassenger(ctx context.Context, rideID, personID string) error {
	q := `DELETE FROM passenger WHERE ride_id = $1 AND person_id = $2`
	if _, err := repo.db.ExecContext(ctx, q, rideID, personID); err != nil {
		return errors.Wrap(err, "removing passenger")
	}
	return nil
}

func (repo rideRepository) DeleteRide(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM ride WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting ride")
	}
	return nil
}

func (repo rideRepository) DeleteRideForDriver(ctx context.Context, eventID, driverID string) error {
	q := `DELETE FROM ride WHERE event_id = $1 AND driver_id = $2`
	if _, err := repo.db.ExecContext(ctx, q, eventID, driverID); err != nil {
		return errors.Wrap(err, "deleting driver ride")
	}
	return nil
}
