package ride

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("ride not found")
	ErrNotEligible   = errors.New("attendance must be PRESENT or LATE for ride actions")
	ErrDuplicateRide = errors.New("driver already offers a ride for this event")
	ErrAlreadyOnRide = errors.New("person is already on this ride")
	ErrRideFull      = errors.New("not enough seats left on this ride")
)

type (
	Repository interface {
		// CreateRide atomically inserts the ride and its anchor passenger row;
		// a (event, driver) uniqueness violation surfaces as ErrDuplicateRide.
		CreateRide(ctx context.Context, r Ride, anchor Passenger) (Ride, error)
		GetRideByID(ctx context.Context, id string) (Ride, error)
		QueryRidesByEvent(ctx context.Context, eventID string) ([]Ride, error)
		QueryPassengers(ctx context.Context, rideID string) ([]Passenger, error)
		// AddPassenger serializes the capacity check and the insert at the
		// store: ErrRideFull when seats run out, ErrAlreadyOnRide on a
		// (ride, person) uniqueness violation.
		AddPassenger(ctx context.Context, rideID string, p Passenger) error
		// RemovePassenger is idempotent; removing an absent row is a no-op.
		RemovePassenger(ctx context.Context, rideID, personID string) error
		// DeleteRide removes the ride; passenger rows cascade at the store.
		DeleteRide(ctx context.Context, id string) error
		// DeleteRideForDriver is idempotent; no error when the driver has no ride.
		DeleteRideForDriver(ctx context.Context, eventID, driverID string) error
	}

	Service interface {
		Query(ctx context.Context, actor user.User, eventID string) ([]Info, error)
		Create(ctx context.Context, actor user.User, eventID string, nr NewRide) (Ride, error)
		Join(ctx context.Context, actor user.User, rideID string, jr JoinRide) (Passenger, error)
		Leave(ctx context.Context, actor user.User, rideID, personID string) error
		Delete(ctx context.Context, actor user.User, rideID string) error
	}

	service struct {
		repo   Repository
		events event.Repository
		teams  team.Repository
		users  user.Repository
	}
)

var _ Service = (*service)(nil)

// the ride repository doubles as the event service's cascade hook
var _ event.RideInvalidator = (Repository)(nil)

func NewService(repo Repository, events event.Repository, teams team.Repository, users user.Repository) Service {
	return &service{
		repo:   repo,
		events: events,
		teams:  teams,
		users:  users,
	}
}

// can checks that the actor may act for the given person on this event's team.
func (svc *service) can(ctx context.Context, actor user.User, evt event.Event, personID string) (core.Decision, error) {
	if personID == actor.ID && (actor.IsCoach() || actor.IsAdmin()) {
		return core.Permit(), nil
	}
	if actor.IsGuardian() {
		players, err := svc.teams.QueryPlayersByGuardian(ctx, evt.TeamID, actor.ID)
		if err != nil {
			return core.Decision{}, errors.Wrap(err, "querying guardian players")
		}
		for _, p := range players {
			if p.ID == personID {
				return core.Permit(), nil
			}
		}
		return core.Refuse("not a guardian of this player"), nil
	}
	return core.Refuse("cannot act for this person"), nil
}

// checkEligibility enforces the attendance precondition with a fresh fetch.
func (svc *service) checkEligibility(ctx context.Context, eventID, personID string) error {
	rows, err := svc.events.QueryAttendance(ctx, eventID)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	for _, att := range rows {
		if att.PersonID == personID {
			if att.Status.Attending() {
				return nil
			}
			break
		}
	}
	return ErrNotEligible
}

func (svc *service) Query(ctx context.Context, actor user.User, eventID string) ([]Info, error) {
	rides, err := svc.repo.QueryRidesByEvent(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying rides")
	}

	infos := make([]Info, 0, len(rides))
	for _, r := range rides {
		passengers, err := svc.repo.QueryPassengers(ctx, r.ID)
		if err != nil {
			return nil, errors.Wrap(err, "querying passengers")
		}
		name, err := svc.driverName(ctx, r)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Ride:       r,
			DriverName: name,
			SeatsLeft:  SeatsLeft(r, passengers),
			Passengers: passengers,
		})
	}
	return infos, nil
}

func (svc *service) Create(ctx context.Context, actor user.User, eventID string, nr NewRide) (Ride, error) {
	if err := nr.Validate(); err != nil {
		return Ride{}, err
	}
	evt, err := svc.events.GetEventByID(ctx, eventID)
	if err != nil {
		return Ride{}, err
	}
	d, err := svc.can(ctx, actor, evt, nr.PersonID)
	if err != nil {
		return Ride{}, err
	}
	if err = d.Err(); err != nil {
		return Ride{}, err
	}
	if err = svc.checkEligibility(ctx, eventID, nr.PersonID); err != nil {
		return Ride{}, err
	}

	now := time.Now().UTC()
	r := Ride{
		EventID:           eventID,
		DriverID:          actor.ID,
		DriverPersonID:    nr.PersonID,
		SeatsAvailable:    nr.SeatsAvailable,
		DepartureLocation: nr.DepartureLocation,
		DepartureAt:       nr.DepartureAt.UTC(),
		Relation:          nr.Relation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if nr.Mode == ModePrivate {
		r.SeatsAvailable = 0
		r.Restricted = true
	}

	kind := KindPlayer
	if nr.PersonID == actor.ID {
		kind = KindCoach
	}
	anchor := Passenger{
		PersonID:  nr.PersonID,
		Kind:      kind,
		SeatCount: 1,
		CreatedAt: now,
	}
	return svc.repo.CreateRide(ctx, r, anchor)
}

func (svc *service) Join(ctx context.Context, actor user.User, rideID string, jr JoinRide) (Passenger, error) {
	if err := jr.Validate(); err != nil {
		return Passenger{}, err
	}
	r, err := svc.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return Passenger{}, err
	}
	evt, err := svc.events.GetEventByID(ctx, r.EventID)
	if err != nil {
		return Passenger{}, err
	}
	d, err := svc.can(ctx, actor, evt, jr.PersonID)
	if err != nil {
		return Passenger{}, err
	}
	if err = d.Err(); err != nil {
		return Passenger{}, err
	}
	if err = svc.checkEligibility(ctx, r.EventID, jr.PersonID); err != nil {
		return Passenger{}, err
	}

	p := Passenger{
		RideID:    rideID,
		PersonID:  jr.PersonID,
		Kind:      jr.Kind,
		SeatCount: jr.SeatCount,
		CreatedAt: time.Now().UTC(),
	}
	if err = svc.repo.AddPassenger(ctx, rideID, p); err != nil {
		return Passenger{}, err
	}
	return p, nil
}

// Leave removes the rider from the ride; leaving a ride one is not on is a no-op.
func (svc *service) Leave(ctx context.Context, actor user.User, rideID, personID string) error {
	r, err := svc.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return err
	}
	if r.DriverID != actor.ID {
		evt, err := svc.events.GetEventByID(ctx, r.EventID)
		if err != nil {
			return err
		}
		d, err := svc.can(ctx, actor, evt, personID)
		if err != nil {
			return err
		}
		if err = d.Err(); err != nil {
			return err
		}
	}
	return svc.repo.RemovePassenger(ctx, rideID, personID)
}

func (svc *service) Delete(ctx context.Context, actor user.User, rideID string) error {
	r, err := svc.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return err
	}
	if r.DriverID != actor.ID {
		return core.NewPermissionError("only the driver may delete this ride")
	}
	return svc.repo.DeleteRide(ctx, rideID)
}

// driverName resolves the display name for a ride's driver:
// "<Parent label> of <child>" when the driver has a child on the roster and is
// not driving as a coach; "Coach <name>" for coaches; the bare name otherwise.
func (svc *service) driverName(ctx context.Context, r Ride) (string, error) {
	driver, err := svc.users.GetUserByID(ctx, r.DriverID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", nil
		}
		return "", errors.Wrap(err, "finding driver")
	}

	if r.Relation == RelationCoach {
		return "Coach " + driver.Name, nil
	}

	var label string
	switch r.Relation {
	case RelationParentA:
		label = "Dad"
	case RelationParentB:
		label = "Mom"
	}
	if label != "" {
		evt, err := svc.events.GetEventByID(ctx, r.EventID)
		if err != nil {
			return "", err
		}
		children, err := svc.teams.QueryPlayersByGuardian(ctx, evt.TeamID, r.DriverID)
		if err != nil {
			return "", errors.Wrap(err, "querying driver players")
		}
		for _, c := range children {
			if c.ID == r.DriverPersonID {
				return label + " of " + c.FullName(), nil
			}
		}
		if len(children) > 0 {
			return label + " of " + children[0].FullName(), nil
		}
	}
	return driver.Name, nil
}
