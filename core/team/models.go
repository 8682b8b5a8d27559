package team

import (
	"strings"
	"time"

	"github.com/trezcool/ekipa/core"
)

type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Season    string    `json:"season"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Player is a roster entry managed by a guardian account.
// Players do not log in themselves; their guardian acts for them.
type Player struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"team_id"`
	GuardianID string    `json:"guardian_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	BirthYear  int       `json:"birth_year,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

func (p Player) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Group is a coach-administered audience for chat/announcement targeting.
// When IsBroadcast is set, only coaches may post to it.
type Group struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Name        string    `json:"name"`
	IsBroadcast bool      `json:"is_broadcast"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type NewTeam struct {
	Name   string `json:"name" validate:"required"`
	Season string `json:"season"`
}

func (nt *NewTeam) Validate() error {
	nt.Name = core.CleanString(nt.Name)
	nt.Season = core.CleanString(nt.Season)
	return core.Validate.Struct(nt)
}

type NewPlayer struct {
	GuardianID string `json:"guardian_id" validate:"required,uuid4"`
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	BirthYear  int    `json:"birth_year" validate:"omitempty,min=1900"`
}

func (np *NewPlayer) Validate() error {
	np.FirstName = core.CleanString(np.FirstName)
	np.LastName = core.CleanString(np.LastName)
	return core.Validate.Struct(np)
}

// UpdatePlayer defines what may be modified on an existing Player; zero-values are ignored.
type UpdatePlayer struct {
	GuardianID string `json:"guardian_id" validate:"omitempty,uuid4"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	BirthYear  int    `json:"birth_year" validate:"omitempty,min=1900"`
	IsActive   *bool  `json:"is_active"`
}

func (up *UpdatePlayer) Validate() error {
	up.FirstName = core.CleanString(up.FirstName)
	up.LastName = core.CleanString(up.LastName)
	return core.Validate.Struct(up)
}

type NewGroup struct {
	Name        string   `json:"name" validate:"required"`
	IsBroadcast bool     `json:"is_broadcast"`
	MemberIDs   []string `json:"member_ids" validate:"omitempty,dive,uuid4"`
}

func (ng *NewGroup) Validate() error {
	ng.Name = core.CleanString(ng.Name)
	return core.Validate.Struct(ng)
}
