package ride

import (
	"time"

	"github.com/trezcool/ekipa/core"
)

// Driver's declared relation to the team
type Relation string

const (
	RelationParentA Relation = "PARENT_A"
	RelationParentB Relation = "PARENT_B"
	RelationCoach   Relation = "COACH"
	RelationOther   Relation = "OTHER"
)

// Ride mode
type Mode string

const (
	ModePublic  Mode = "PUBLIC"
	ModePrivate Mode = "PRIVATE"
)

// Rider kind
type PersonKind string

const (
	KindPlayer PersonKind = "PLAYER"
	KindCoach  PersonKind = "COACH"
)

// Ride is a driver-initiated transport offer tied to one event.
// A driver may have at most one active ride per event.
type Ride struct {
	ID       string `json:"id"`
	EventID  string `json:"event_id"`
	DriverID string `json:"driver_id"` // user account of the driver
	// DriverPersonID anchors the ride to the attending person it was offered
	// for: the guardian's child, or the coach's own id. Its passenger row marks
	// the driver's own seat and never counts against SeatsAvailable.
	DriverPersonID    string    `json:"driver_person_id"`
	SeatsAvailable    int       `json:"seats_available"` // seats offered to others; 0 = private/closed
	DepartureLocation string    `json:"departure_location"`
	DepartureAt       time.Time `json:"departure_at"` // UTC
	Relation          Relation  `json:"relation"`
	Restricted        bool      `json:"restricted"` // closed ride; no joins
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

// Passenger links a rider to a ride. SeatCount is 1 (rider alone) or
// 2 (rider plus one accompanying adult).
type Passenger struct {
	RideID    string     `json:"ride_id"`
	PersonID  string     `json:"person_id"`
	Kind      PersonKind `json:"kind"`
	SeatCount int        `json:"seat_count"`
	CreatedAt time.Time  `json:"created_at"` // UTC
}

// Info is a ride with its read-time derived state, for listings.
type Info struct {
	Ride
	DriverName string      `json:"driver_name"`
	SeatsLeft  int         `json:"seats_left"`
	Passengers []Passenger `json:"passengers"`
}

// SeatsLeft computes remaining capacity; the driver's anchor row is excluded.
func SeatsLeft(r Ride, passengers []Passenger) int {
	taken := 0
	for _, p := range passengers {
		if p.PersonID == r.DriverPersonID {
			continue
		}
		taken += p.SeatCount
	}
	left := r.SeatsAvailable - taken
	if left < 0 {
		return 0
	}
	return left
}

type NewRide struct {
	// PersonID is the attending person the ride is offered for: one of the
	// guardian's managed players, or the coach's own user id.
	PersonID          string    `json:"person_id" validate:"required,uuid4"`
	SeatsAvailable    int       `json:"seats_available" validate:"min=0,max=8"`
	DepartureLocation string    `json:"departure_location"`
	DepartureAt       time.Time `json:"departure_at"`
	Relation          Relation  `json:"relation" validate:"required,oneof=PARENT_A PARENT_B COACH OTHER"`
	Mode              Mode      `json:"mode" validate:"required,oneof=PUBLIC PRIVATE"`
}

func (nr *NewRide) Validate() error {
	nr.DepartureLocation = core.CleanString(nr.DepartureLocation)
	return core.Validate.Struct(nr)
}

type JoinRide struct {
	PersonID  string     `json:"person_id" validate:"required,uuid4"`
	Kind      PersonKind `json:"kind" validate:"required,oneof=PLAYER COACH"`
	SeatCount int        `json:"seat_count" validate:"required,oneof=1 2"`
}

func (jr *JoinRide) Validate() error {
	return core.Validate.Struct(jr)
}
