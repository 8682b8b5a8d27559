package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
)

type dbEvent struct {
	ID            string         `db:"id"`
	TeamID        string         `db:"team_id"`
	Type          string         `db:"type"`
	StartsAt      time.Time      `db:"starts_at"`
	Location      sql.NullString `db:"location"`
	Notes         sql.NullString `db:"notes"`
	Visibility    string         `db:"visibility"`
	MatchLocation sql.NullString `db:"match_location"`
	IsRecurring   bool           `db:"is_recurring"`
	Recurrence    sql.NullString `db:"recurrence"`
	IsDeleted     bool           `db:"is_deleted"`
	CreatedBy     sql.NullString `db:"created_by"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (e dbEvent) toCore() event.Event {
	return event.Event{
		ID:            e.ID,
		TeamID:        e.TeamID,
		Type:          event.Type(e.Type),
		StartsAt:      e.StartsAt,
		Location:      e.Location.String,
		Notes:         e.Notes.String,
		Visibility:    event.Visibility(e.Visibility),
		MatchLocation: event.MatchLocation(e.MatchLocation.String),
		IsRecurring:   e.IsRecurring,
		Recurrence:    event.Recurrence(e.Recurrence.String),
		IsDeleted:     e.IsDeleted,
		CreatedBy:     e.CreatedBy.String,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func newDBEvent(evt event.Event) dbEvent {
	return dbEvent{
		ID:            evt.ID,
		TeamID:        evt.TeamID,
		Type:          string(evt.Type),
		StartsAt:      evt.StartsAt.UTC(),
		Location:      sql.NullString{String: evt.Location, Valid: evt.Location != ""},
		Notes:         sql.NullString{String: evt.Notes, Valid: evt.Notes != ""},
		Visibility:    string(evt.Visibility),
		MatchLocation: sql.NullString{String: string(evt.MatchLocation), Valid: evt.MatchLocation != ""},
		IsRecurring:   evt.IsRecurring,
		Recurrence:    sql.NullString{String: string(evt.Recurrence), Valid: evt.Recurrence != ""},
		IsDeleted:     evt.IsDeleted,
		CreatedBy:     sql.NullString{String: evt.CreatedBy, Valid: evt.CreatedBy != ""},
		CreatedAt:     evt.CreatedAt.UTC(),
		UpdatedAt:     evt.UpdatedAt.UTC(),
	}
}

type dbAttendance struct {
	EventID    string    `db:"event_id"`
	PersonID   string    `db:"person_id"`
	Status     string    `db:"status"`
	IsConvoked bool      `db:"is_convoked"`
	IsLocked   bool      `db:"is_locked"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (a dbAttendance) toCore() event.Attendance {
	return event.Attendance{
		EventID:    a.EventID,
		PersonID:   a.PersonID,
		Status:     event.Status(a.Status),
		IsConvoked: a.IsConvoked,
		IsLocked:   a.IsLocked,
		UpdatedAt:  a.UpdatedAt,
	}
}

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo eventRepository) CreateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	evt.ID = uuid.New().String()
	row := newDBEvent(evt)
	q := `
INSERT INTO event (id, team_id, type, starts_at, location, notes, visibility, match_location,
                   is_recurring, recurrence, is_deleted, created_by, created_at, updated_at)
VALUES (:id, :team_id, :type, :starts_at, :location, :notes, :visibility, :match_location,
        :is_recurring, :recurrence, :is_deleted, :created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return row.toCore(), nil
}

func (repo eventRepository) GetEventByID(ctx context.Context, id string) (event.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return event.Event{}, event.ErrNotFound
	}
	var row dbEvent
	q := `SELECT * FROM event WHERE id = $1 AND is_deleted = FALSE`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "finding event by ID")
	}
	evt := row.toCore()
	att, err := repo.QueryAttendance(ctx, evt.ID)
	if err != nil {
		return event.Event{}, err
	}
	evt.Attendance = att
	return evt, nil
}

func (repo eventRepository) QueryEventsByTeam(ctx context.Context, teamID string, ordering ...core.DBOrdering) ([]event.Event, error) {
	q := `SELECT * FROM event WHERE team_id = $1 AND is_deleted = FALSE`
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += ` ORDER BY ` + strings.Join(orderList, ", ")
	} else {
		q += ` ORDER BY starts_at`
	}

	var rows []dbEvent
	if err := repo.db.SelectContext(ctx, &rows, q, teamID); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		evt := row.toCore()
		att, err := repo.QueryAttendance(ctx, evt.ID)
		if err != nil {
			return nil, err
		}
		evt.Attendance = att
		events = append(events, evt)
	}
	return events, nil
}

func (repo eventRepository) UpdateEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	row := newDBEvent(evt)
	q := `
UPDATE event
SET type = :type, starts_at = :starts_at, location = :location, notes = :notes, visibility = :visibility,
    match_location = :match_location, is_recurring = :is_recurring, recurrence = :recurrence, updated_at = :updated_at
WHERE id = :id AND is_deleted = FALSE`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "updating event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return repo.GetEventByID(ctx, evt.ID)
}

func (repo eventRepository) SoftDeleteEvent(ctx context.Context, id string) error {
	q := `UPDATE event SET is_deleted = TRUE, updated_at = $1 WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "soft-deleting event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (repo eventRepository) DeleteEventsBefore(ctx context.Context, teamID string, cutoff time.Time) (int, error) {
	q := `DELETE FROM event WHERE team_id = $1 AND starts_at < $2`
	res, err := repo.db.ExecContext(ctx, q, teamID, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting past events")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted events")
	}
	return int(n), nil
}

func (repo eventRepository) QueryAttendance(ctx context.Context, eventID string) ([]event.Attendance, error) {
	var rows []dbAttendance
	q := `SELECT * FROM attendance WHERE event_id = $1 ORDER BY person_id`
	if err := repo.db.SelectContext(ctx, &rows, q, eventID); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	att := make([]event.Attendance, 0, len(rows))
	for _, row := range rows {
		att = append(att, row.toCore())
	}
	return att, nil
}

func (repo eventRepository) UpsertAttendance(ctx context.Context, rows ...event.Attendance) error {
	q := `
INSERT INTO attendance (event_id, person_id, status, is_convoked, is_locked, updated_at)
VALUES (:event_id, :person_id, :status, :is_convoked, :is_locked, :updated_at)
ON CONFLICT (event_id, person_id)
    DO UPDATE SET status = EXCLUDED.status, is_convoked = EXCLUDED.is_convoked,
                  is_locked = EXCLUDED.is_locked, updated_at = EXCLUDED.updated_at`
	for _, att := range rows {
		row := dbAttendance{
			EventID:    att.EventID,
			PersonID:   att.PersonID,
			Status:     string(att.Status),
			IsConvoked: att.IsConvoked,
			IsLocked:   att.IsLocked,
			UpdatedAt:  att.UpdatedAt.UTC(),
		}
		if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
			return errors.Wrap(err, "upserting attendance")
		}
	}
	return nil
}
