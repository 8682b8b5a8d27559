package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
)

type eventRepository struct {
	db *DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db}
}

func (repo *eventRepository) CreateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	evt.ID = uuid.New().String()
	stored := evt
	stored.Attendance = nil
	repo.db.events[evt.ID] = &stored
	return evt, nil
}

func (repo *eventRepository) GetEventByID(_ context.Context, id string) (event.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evt, ok := repo.db.events[id]
	if !ok || evt.IsDeleted {
		return event.Event{}, event.ErrNotFound
	}
	out := *evt
	out.Attendance = repo.queryAttendance(id)
	return out, nil
}

func (repo *eventRepository) QueryEventsByTeam(_ context.Context, teamID string, _ ...core.DBOrdering) ([]event.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	events := make([]event.Event, 0)
	for _, evt := range repo.db.events {
		if evt.TeamID != teamID || evt.IsDeleted {
			continue
		}
		out := *evt
		out.Attendance = repo.queryAttendance(evt.ID)
		events = append(events, out)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	return events, nil
}

func (repo *eventRepository) UpdateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.events[evt.ID]
	if !ok || orig.IsDeleted {
		return event.Event{}, event.ErrNotFound
	}
	stored := evt
	stored.Attendance = nil
	repo.db.events[evt.ID] = &stored

	out := evt
	out.Attendance = repo.queryAttendance(evt.ID)
	return out, nil
}

func (repo *eventRepository) SoftDeleteEvent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	evt, ok := repo.db.events[id]
	if !ok || evt.IsDeleted {
		return event.ErrNotFound
	}
	evt.IsDeleted = true
	evt.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *eventRepository) DeleteEventsBefore(_ context.Context, teamID string, cutoff time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for id, evt := range repo.db.events {
		if evt.TeamID == teamID && evt.StartsAt.Before(cutoff) {
			delete(repo.db.events, id)
			delete(repo.db.attendance, id)
			count++
		}
	}
	return count, nil
}

func (repo *eventRepository) queryAttendance(eventID string) []event.Attendance {
	rows := make([]event.Attendance, 0, len(repo.db.attendance[eventID]))
	for _, att := range repo.db.attendance[eventID] {
		rows = append(rows, *att)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PersonID < rows[j].PersonID })
	return rows
}

func (repo *eventRepository) QueryAttendance(_ context.Context, eventID string) ([]event.Attendance, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryAttendance(eventID), nil
}

func (repo *eventRepository) UpsertAttendance(_ context.Context, rows ...event.Attendance) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, att := range rows {
		att := att
		if repo.db.attendance[att.EventID] == nil {
			repo.db.attendance[att.EventID] = make(map[string]*event.Attendance)
		}
		repo.db.attendance[att.EventID][att.PersonID] = &att
	}
	return nil
}
