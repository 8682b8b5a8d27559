// Package inmemdb provides mutex-guarded in-memory repositories, used in tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
)

type (
	DB struct {
		mutex sync.RWMutex

		users   map[string]*user.User
		teams   map[string]*team.Team
		coaches map[string][]string // teamID -> userIDs
		players map[string]*team.Player
		groups  map[string]*team.Group

		events     map[string]*event.Event
		attendance map[string]map[string]*event.Attendance // eventID -> personID -> row

		rides      map[string]*ride.Ride
		passengers map[string]map[string]*ride.Passenger // rideID -> personID -> row
	}
)

func Open() (*DB, error) {
	db := &DB{
		users:      make(map[string]*user.User),
		teams:      make(map[string]*team.Team),
		coaches:    make(map[string][]string),
		players:    make(map[string]*team.Player),
		groups:     make(map[string]*team.Group),
		events:     make(map[string]*event.Event),
		attendance: make(map[string]map[string]*event.Attendance),
		rides:      make(map[string]*ride.Ride),
		passengers: make(map[string]map[string]*ride.Passenger),
	}
	return db, nil
}
