package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/ekipa/core/ride"
)

type rideRepository struct {
	db *DB
}

var _ ride.Repository = (*rideRepository)(nil) // interface compliance check

func NewRideRepository(db *DB) *rideRepository {
	return &rideRepository{db: db}
}

func (repo *rideRepository) CreateRide(_ context.Context, r ride.Ride, anchor ride.Passenger) (ride.Ride, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.rides {
		if existing.EventID == r.EventID && existing.DriverID == r.DriverID {
			return ride.Ride{}, ride.ErrDuplicateRide
		}
	}

	r.ID = uuid.New().String()
	anchor.RideID = r.ID
	repo.db.rides[r.ID] = &r
	repo.db.passengers[r.ID] = map[string]*ride.Passenger{anchor.PersonID: &anchor}
	return r, nil
}

func (repo *rideRepository) GetRideByID(_ context.Context, id string) (ride.Ride, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.rides[id]; ok {
		return *r, nil
	}
	return ride.Ride{}, ride.ErrNotFound
}

func (repo *rideRepository) QueryRidesByEvent(_ context.Context, eventID string) ([]ride.Ride, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rides := make([]ride.Ride, 0)
	for _, r := range repo.db.rides {
		if r.EventID == eventID {
			rides = append(rides, *r)
		}
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.Before(rides[j].CreatedAt) })
	return rides, nil
}

func (repo *rideRepository) queryPassengers(rideID string) []ride.Passenger {
	passengers := make([]ride.Passenger, 0, len(repo.db.passengers[rideID]))
	for _, p := range repo.db.passengers[rideID] {
		passengers = append(passengers, *p)
	}
	sort.Slice(passengers, func(i, j int) bool { return passengers[i].CreatedAt.Before(passengers[j].CreatedAt) })
	return passengers
}

func (repo *rideRepository) QueryPassengers(_ context.Context, rideID string) ([]ride.Passenger, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryPassengers(rideID), nil
}

// AddPassenger performs the capacity check and the insert under one lock,
// so two concurrent joins cannot both claim the last seat.
func (repo *rideRepository) AddPassenger(_ context.Context, rideID string, p ride.Passenger) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r, ok := repo.db.rides[rideID]
	if !ok {
		return ride.ErrNotFound
	}
	if r.Restricted {
		return ride.ErrRideFull
	}
	if _, ok = repo.db.passengers[rideID][p.PersonID]; ok {
		return ride.ErrAlreadyOnRide
	}
	if ride.SeatsLeft(*r, repo.queryPassengers(rideID)) < p.SeatCount {
		return ride.ErrRideFull
	}

	p.RideID = rideID
	if repo.db.passengers[rideID] == nil {
		repo.db.passengers[rideID] = make(map[string]*ride.Passenger)
	}
	repo.db.passengers[rideID][p.PersonID] = &p
	return nil
}

func (repo *rideRepository) RemovePassenger(_ context.Context, rideID, personID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.passengers[rideID], personID)
	return nil
}

func (repo *rideRepository) DeleteRide(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.rides, id)
	delete(repo.db.passengers, id)
	return nil
}

func (repo *rideRepository) DeleteRideForDriver(_ context.Context, eventID, driverID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, r := range repo.db.rides {
		if r.EventID == eventID && r.DriverID == driverID {
			delete(repo.db.rides, id)
			delete(repo.db.passengers, id)
		}
	}
	return nil
}
