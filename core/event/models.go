package event

import (
	"time"

	"github.com/trezcool/ekipa/core"
)

// Event types
type Type string

const (
	TypeMatch    Type = "MATCH"
	TypeTraining Type = "TRAINING"
)

// Event visibility
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Match location sub-type (only meaningful when Type is MATCH)
type MatchLocation string

const (
	MatchHome MatchLocation = "HOME"
	MatchAway MatchLocation = "AWAY"
)

// Recurrence pattern
type Recurrence string

const RecurrenceWeekly Recurrence = "WEEKLY"

// Attendance status
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusSick    Status = "SICK"
	StatusInjured Status = "INJURED"
)

// Attending reports whether the status allows driving/joining a ride.
func (s Status) Attending() bool {
	return s == StatusPresent || s == StatusLate
}

// NotAttending reports whether the status invalidates a ride offer.
// StatusUnknown and StatusLate are neutral; only a firm "won't be there" cascades.
func (s Status) NotAttending() bool {
	return s == StatusAbsent || s == StatusSick || s == StatusInjured
}

type Event struct {
	ID            string        `json:"id"`
	TeamID        string        `json:"team_id"`
	Type          Type          `json:"type"`
	StartsAt      time.Time     `json:"starts_at"` // UTC
	Location      string        `json:"location"`
	Notes         string        `json:"notes"`
	Visibility    Visibility    `json:"visibility"`
	MatchLocation MatchLocation `json:"match_location,omitempty"`
	IsRecurring   bool          `json:"is_recurring"`
	Recurrence    Recurrence    `json:"recurrence,omitempty"`
	IsDeleted     bool          `json:"is_deleted"`
	CreatedBy     string        `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"` // UTC
	UpdatedAt     time.Time     `json:"updated_at"` // UTC

	Attendance []Attendance `json:"attendance"`
}

// Attendance is the (event, person) record; person is a roster player id or,
// for coaches reporting for themselves, the coach's own user id.
type Attendance struct {
	EventID    string    `json:"event_id"`
	PersonID   string    `json:"person_id"`
	Status     Status    `json:"status"`
	IsConvoked bool      `json:"is_convoked"`
	IsLocked   bool      `json:"is_locked"`
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// mergeAttendance merges an incoming attendance write over the existing row.
// Field precedence:
//   - Status: incoming when set, else existing, else StatusUnknown
//   - IsConvoked, IsLocked: incoming
//
// A recorded status is therefore never discarded by a convocation toggle.
func mergeAttendance(existing *Attendance, in Attendance) Attendance {
	out := Attendance{
		EventID:    in.EventID,
		PersonID:   in.PersonID,
		Status:     in.Status,
		IsConvoked: in.IsConvoked,
		IsLocked:   in.IsLocked,
		UpdatedAt:  time.Now().UTC(),
	}
	if out.Status == "" {
		if existing != nil && existing.Status != "" {
			out.Status = existing.Status
		} else {
			out.Status = StatusUnknown
		}
	}
	return out
}

type NewEvent struct {
	TeamID        string        `json:"team_id" validate:"required,uuid4"`
	Type          Type          `json:"type" validate:"required,oneof=MATCH TRAINING"`
	StartsAt      time.Time     `json:"starts_at" validate:"required"`
	Location      string        `json:"location"`
	Notes         string        `json:"notes"`
	Visibility    Visibility    `json:"visibility" validate:"omitempty,oneof=PUBLIC PRIVATE"`
	MatchLocation MatchLocation `json:"match_location" validate:"omitempty,oneof=HOME AWAY"`
	IsRecurring   bool          `json:"is_recurring"`
	ConvokedIDs   []string      `json:"convoked_ids" validate:"omitempty,dive,uuid4"`
}

func (ne *NewEvent) Validate() error {
	ne.Location = core.CleanString(ne.Location)
	ne.Notes = core.CleanString(ne.Notes)
	if ne.Visibility == "" {
		ne.Visibility = VisibilityPublic
	}
	return core.Validate.Struct(ne)
}

// UpdateEvent defines what may be modified on an existing Event; zero-values are ignored.
// A non-nil ConvokedIDs triggers convocation reconciliation after the field update commits.
type UpdateEvent struct {
	Type          Type          `json:"type" validate:"omitempty,oneof=MATCH TRAINING"`
	StartsAt      time.Time     `json:"starts_at"`
	Location      string        `json:"location"`
	Notes         string        `json:"notes"`
	Visibility    Visibility    `json:"visibility" validate:"omitempty,oneof=PUBLIC PRIVATE"`
	MatchLocation MatchLocation `json:"match_location" validate:"omitempty,oneof=HOME AWAY"`
	ConvokedIDs   *[]string     `json:"convoked_ids" validate:"omitempty,dive,uuid4"`
}

func (ue *UpdateEvent) Validate() error {
	ue.Location = core.CleanString(ue.Location)
	ue.Notes = core.CleanString(ue.Notes)
	return core.Validate.Struct(ue)
}

// ConvocationUpdate is one entry of the convocation endpoint's payload.
type ConvocationUpdate struct {
	PersonID   string `json:"user_id" validate:"required,uuid4"`
	IsConvoked bool   `json:"is_convoked"`
}
