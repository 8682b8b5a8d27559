package event

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("event not found")

	errNotOnRoster = "person is not on the team's active roster"
	errBadStatus   = "invalid attendance status"
)

// capability actions
const (
	actionManageEvents = "event:manage"
	actionSetStatus    = "event:status"
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEventByID(ctx context.Context, id string) (Event, error)
		// QueryEventsByTeam returns non-deleted events with their attendance rows attached.
		QueryEventsByTeam(ctx context.Context, teamID string, ordering ...core.DBOrdering) ([]Event, error)
		UpdateEvent(ctx context.Context, evt Event) (Event, error)
		SoftDeleteEvent(ctx context.Context, id string) error
		// DeleteEventsBefore hard-deletes a team's events starting before the cutoff;
		// attendance rows cascade at the store.
		DeleteEventsBefore(ctx context.Context, teamID string, cutoff time.Time) (int, error)

		QueryAttendance(ctx context.Context, eventID string) ([]Attendance, error)
		// UpsertAttendance writes rows keyed by (event, person); re-submitting
		// identical rows produces no additional change.
		UpsertAttendance(ctx context.Context, rows ...Attendance) error
	}

	// RideInvalidator cascades ride cleanup when an attendance change removes
	// the precondition that justified the ride's existence.
	RideInvalidator interface {
		DeleteRideForDriver(ctx context.Context, eventID, driverID string) error
	}

	Service interface {
		Create(ctx context.Context, actor user.User, ne NewEvent) (Event, error)
		Update(ctx context.Context, actor user.User, eventID string, ue UpdateEvent) (Event, error)
		Delete(ctx context.Context, actor user.User, eventID string) error
		Query(ctx context.Context, actor user.User, teamID string) ([]Event, error)
		Reconcile(ctx context.Context, actor user.User, eventID string, targetIDs []string) ([]Attendance, error)
		SetStatus(ctx context.Context, actor user.User, eventID, personID string, status Status) (Attendance, error)
		GenerateRecurring(ctx context.Context, actor user.User, teamID string) (int, error)
		CleanupPast(ctx context.Context, actor user.User, teamID string) (int, error)
	}

	service struct {
		repo    Repository
		teams   team.Repository
		users   user.Repository
		rides   RideInvalidator
		mailSvc core.EmailService
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, teams team.Repository, users user.Repository, rides RideInvalidator,
	mailSvc core.EmailService, log core.Logger) Service {
	return &service{
		repo:    repo,
		teams:   teams,
		users:   users,
		rides:   rides,
		mailSvc: mailSvc,
		log:     log,
	}
}

// can is the capability check run before every mutating operation.
func (svc *service) can(ctx context.Context, actor user.User, action, teamID string) (core.Decision, error) {
	if actor.IsAdmin() {
		return core.Permit(), nil
	}
	switch action {
	case actionManageEvents:
		if !actor.IsCoach() {
			return core.Refuse("coach role required"), nil
		}
		isCoach, err := svc.teams.IsCoach(ctx, teamID, actor.ID)
		if err != nil {
			return core.Decision{}, errors.Wrap(err, "checking team coach")
		}
		if !isCoach {
			return core.Refuse("not a coach of this team"), nil
		}
		return core.Permit(), nil
	case actionSetStatus:
		// fine-grained person checks happen in SetStatus
		if actor.IsCoach() || actor.IsGuardian() {
			return core.Permit(), nil
		}
		return core.Refuse("coach or guardian role required"), nil
	}
	return core.Refuse("unknown action"), nil
}

func (svc *service) Create(ctx context.Context, actor user.User, ne NewEvent) (Event, error) {
	if err := ne.Validate(); err != nil {
		return Event{}, err
	}
	d, err := svc.can(ctx, actor, actionManageEvents, ne.TeamID)
	if err != nil {
		return Event{}, err
	}
	if err = d.Err(); err != nil {
		return Event{}, err
	}

	now := time.Now().UTC()
	evt := Event{
		TeamID:        ne.TeamID,
		Type:          ne.Type,
		StartsAt:      ne.StartsAt.UTC(),
		Location:      ne.Location,
		Notes:         ne.Notes,
		Visibility:    ne.Visibility,
		MatchLocation: ne.MatchLocation,
		IsRecurring:   ne.IsRecurring,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ne.IsRecurring {
		evt.Recurrence = RecurrenceWeekly
	}
	evt, err = svc.repo.CreateEvent(ctx, evt)
	if err != nil {
		return Event{}, errors.Wrap(err, "creating event")
	}

	if len(ne.ConvokedIDs) > 0 {
		if evt.Attendance, err = svc.Reconcile(ctx, actor, evt.ID, ne.ConvokedIDs); err != nil {
			return Event{}, err
		}
	}
	return evt, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, eventID string, ue UpdateEvent) (Event, error) {
	if err := ue.Validate(); err != nil {
		return Event{}, err
	}
	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	d, err := svc.can(ctx, actor, actionManageEvents, evt.TeamID)
	if err != nil {
		return Event{}, err
	}
	if err = d.Err(); err != nil {
		return Event{}, err
	}

	if ue.Type != "" {
		evt.Type = ue.Type
	}
	if !ue.StartsAt.IsZero() {
		evt.StartsAt = ue.StartsAt.UTC()
	}
	if ue.Location != "" {
		evt.Location = ue.Location
	}
	if ue.Notes != "" {
		evt.Notes = ue.Notes
	}
	if ue.Visibility != "" {
		evt.Visibility = ue.Visibility
	}
	if ue.MatchLocation != "" {
		evt.MatchLocation = ue.MatchLocation
	}
	evt.UpdatedAt = time.Now().UTC()

	evt, err = svc.repo.UpdateEvent(ctx, evt)
	if err != nil {
		return Event{}, errors.Wrap(err, "updating event")
	}

	// convocation reconciliation runs after the field update commits
	if ue.ConvokedIDs != nil {
		if evt.Attendance, err = svc.Reconcile(ctx, actor, eventID, *ue.ConvokedIDs); err != nil {
			return Event{}, err
		}
	}
	return evt, nil
}

// Delete soft-deletes the event; history is preserved for statistics.
func (svc *service) Delete(ctx context.Context, actor user.User, eventID string) error {
	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	d, err := svc.can(ctx, actor, actionManageEvents, evt.TeamID)
	if err != nil {
		return err
	}
	if err = d.Err(); err != nil {
		return err
	}
	return svc.repo.SoftDeleteEvent(ctx, eventID)
}

// Query returns the team's events with attendance, visibility-filtered:
// coaches of the team (and admins) see everything; guardians see PUBLIC events
// plus PRIVATE events where one of their managed players is convoked.
func (svc *service) Query(ctx context.Context, actor user.User, teamID string) ([]Event, error) {
	events, err := svc.repo.QueryEventsByTeam(ctx, teamID, core.DBOrdering{Field: "starts_at", Ascending: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}

	if actor.IsAdmin() {
		return events, nil
	}
	if actor.IsCoach() {
		isCoach, err := svc.teams.IsCoach(ctx, teamID, actor.ID)
		if err != nil {
			return nil, errors.Wrap(err, "checking team coach")
		}
		if isCoach {
			return events, nil
		}
	}

	mine := make(map[string]struct{})
	if actor.IsGuardian() {
		players, err := svc.teams.QueryPlayersByGuardian(ctx, teamID, actor.ID)
		if err != nil {
			return nil, errors.Wrap(err, "querying guardian players")
		}
		for _, p := range players {
			mine[p.ID] = struct{}{}
		}
	}
	mine[actor.ID] = struct{}{} // coach of another team convoked as a person

	visible := make([]Event, 0, len(events))
	for _, evt := range events {
		if evt.Visibility == VisibilityPublic {
			visible = append(visible, evt)
			continue
		}
		for _, att := range evt.Attendance {
			if _, ok := mine[att.PersonID]; ok && att.IsConvoked {
				visible = append(visible, evt)
				break
			}
		}
	}
	return visible, nil
}

// Reconcile applies a full-replacement convocation set to the event.
// Recorded statuses are preserved; re-submitting the same set is a no-op.
func (svc *service) Reconcile(ctx context.Context, actor user.User, eventID string, targetIDs []string) ([]Attendance, error) {
	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	d, err := svc.can(ctx, actor, actionManageEvents, evt.TeamID)
	if err != nil {
		return nil, err
	}
	if err = d.Err(); err != nil {
		return nil, err
	}
	if err = svc.checkRoster(ctx, evt.TeamID, targetIDs); err != nil {
		return nil, err
	}

	existing, err := svc.repo.QueryAttendance(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	byPerson := make(map[string]*Attendance, len(existing))
	for i := range existing {
		byPerson[existing[i].PersonID] = &existing[i]
	}
	target := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		target[id] = struct{}{}
	}

	var rows []Attendance
	var newlyConvoked []string
	for _, id := range targetIDs {
		ex := byPerson[id]
		rows = append(rows, mergeAttendance(ex, Attendance{
			EventID:    eventID,
			PersonID:   id,
			IsConvoked: true,
			IsLocked:   true,
		}))
		if ex == nil || !ex.IsConvoked {
			newlyConvoked = append(newlyConvoked, id)
		}
	}
	// anyone previously convoked but absent from the target set is un-convoked,
	// keeping their recorded status
	for _, ex := range existing {
		if _, ok := target[ex.PersonID]; ok || !ex.IsConvoked {
			continue
		}
		rows = append(rows, mergeAttendance(&ex, Attendance{
			EventID:    eventID,
			PersonID:   ex.PersonID,
			IsConvoked: false,
			IsLocked:   true,
		}))
	}

	if len(rows) > 0 {
		if err = svc.repo.UpsertAttendance(ctx, rows...); err != nil {
			return nil, errors.Wrap(err, "upserting attendance")
		}
	}
	if len(newlyConvoked) > 0 {
		svc.notifyConvoked(ctx, evt, newlyConvoked)
	}
	return svc.repo.QueryAttendance(ctx, eventID)
}

// SetStatus records a person's attendance status and cascades ride invalidation.
func (svc *service) SetStatus(ctx context.Context, actor user.User, eventID, personID string, status Status) (Attendance, error) {
	switch status {
	case StatusUnknown, StatusPresent, StatusAbsent, StatusLate, StatusSick, StatusInjured:
	default:
		return Attendance{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: errBadStatus})
	}

	evt, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return Attendance{}, err
	}
	d, err := svc.can(ctx, actor, actionSetStatus, evt.TeamID)
	if err != nil {
		return Attendance{}, err
	}
	if err = d.Err(); err != nil {
		return Attendance{}, err
	}

	// coach self-report stays unlocked; a coach editing a player's row finalizes it
	var locked bool
	coachSelf := personID == actor.ID
	var cascadePlayer *team.Player
	switch {
	case coachSelf && (actor.IsCoach() || actor.IsAdmin()):
		locked = false
	case actor.IsCoach() || actor.IsAdmin():
		cd, err := svc.can(ctx, actor, actionManageEvents, evt.TeamID)
		if err != nil {
			return Attendance{}, err
		}
		if err = cd.Err(); err != nil {
			return Attendance{}, err
		}
		locked = true
		if p, err := svc.teams.GetPlayerByID(ctx, personID); err == nil {
			cascadePlayer = &p
		}
	default: // guardian: only their own managed players
		players, err := svc.teams.QueryPlayersByGuardian(ctx, evt.TeamID, actor.ID)
		if err != nil {
			return Attendance{}, errors.Wrap(err, "querying guardian players")
		}
		var p *team.Player
		for i := range players {
			if players[i].ID == personID {
				p = &players[i]
				break
			}
		}
		if p == nil {
			return Attendance{}, core.NewPermissionError("not a guardian of this player")
		}
		cascadePlayer = p
	}

	existing, err := svc.repo.QueryAttendance(ctx, eventID)
	if err != nil {
		return Attendance{}, errors.Wrap(err, "querying attendance")
	}
	var ex *Attendance
	for i := range existing {
		if existing[i].PersonID == personID {
			ex = &existing[i]
			break
		}
	}
	in := Attendance{
		EventID:  eventID,
		PersonID: personID,
		Status:   status,
		IsLocked: locked,
	}
	if ex != nil {
		in.IsConvoked = ex.IsConvoked
		if !locked && !coachSelf {
			in.IsLocked = ex.IsLocked
		}
	}
	row := mergeAttendance(ex, in)
	if err = svc.repo.UpsertAttendance(ctx, row); err != nil {
		return Attendance{}, errors.Wrap(err, "upserting attendance")
	}

	if status.NotAttending() {
		if err = svc.cascadeRideInvalidation(ctx, evt, personID, coachSelf, cascadePlayer); err != nil {
			return Attendance{}, err
		}
	}
	return row, nil
}

// cascadeRideInvalidation deletes a ride offer that the status change just
// invalidated. The attendance snapshot is re-fetched from the store; a cached
// view could miss the write that triggered the cascade.
func (svc *service) cascadeRideInvalidation(ctx context.Context, evt Event, personID string, coachSelf bool, p *team.Player) error {
	if coachSelf {
		if err := svc.rides.DeleteRideForDriver(ctx, evt.ID, personID); err != nil {
			return errors.Wrap(err, "cascading coach ride deletion")
		}
		return nil
	}

	if p == nil {
		player, err := svc.teams.GetPlayerByID(ctx, personID)
		if err != nil {
			if errors.Cause(err) == team.ErrPlayerNotFound {
				return nil
			}
			return errors.Wrap(err, "finding player")
		}
		p = &player
	}

	// the guardian's ride survives as long as any of their players still attends
	siblings, err := svc.teams.QueryPlayersByGuardian(ctx, evt.TeamID, p.GuardianID)
	if err != nil {
		return errors.Wrap(err, "querying guardian players")
	}
	fresh, err := svc.repo.QueryAttendance(ctx, evt.ID)
	if err != nil {
		return errors.Wrap(err, "re-querying attendance")
	}
	statuses := make(map[string]Status, len(fresh))
	for _, att := range fresh {
		statuses[att.PersonID] = att.Status
	}
	for _, sib := range siblings {
		if statuses[sib.ID].Attending() {
			return nil
		}
	}
	if err = svc.rides.DeleteRideForDriver(ctx, evt.ID, p.GuardianID); err != nil {
		return errors.Wrap(err, "cascading guardian ride deletion")
	}
	return nil
}

// GenerateRecurring keeps every weekly chain one occurrence ahead. A chain is
// identified by its type and weekly slot (weekday plus clock time); the latest
// event of a chain is projected a week forward once it comes within the next
// seven days, copying only the convoked subset as fresh unanswered rows.
// Calling again before the window moves is a no-op.
func (svc *service) GenerateRecurring(ctx context.Context, actor user.User, teamID string) (int, error) {
	d, err := svc.can(ctx, actor, actionManageEvents, teamID)
	if err != nil {
		return 0, err
	}
	if err = d.Err(); err != nil {
		return 0, err
	}

	events, err := svc.repo.QueryEventsByTeam(ctx, teamID)
	if err != nil {
		return 0, errors.Wrap(err, "querying events")
	}

	heads := make(map[string]Event)
	taken := make(map[string]struct{})
	for _, evt := range events {
		if evt.IsDeleted {
			continue
		}
		taken[slotKey(evt.Type, evt.StartsAt)] = struct{}{}
		if !evt.IsRecurring {
			continue
		}
		key := chainKey(evt.Type, evt.StartsAt)
		if head, ok := heads[key]; !ok || evt.StartsAt.After(head.StartsAt) {
			heads[key] = evt
		}
	}

	var count int
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, 7)
	for _, tmpl := range heads {
		if !tmpl.StartsAt.Before(horizon) {
			continue // chain already extends a week out
		}
		nextAt := tmpl.StartsAt.AddDate(0, 0, 7)
		if _, ok := taken[slotKey(tmpl.Type, nextAt)]; ok {
			continue
		}
		next := Event{
			TeamID:        tmpl.TeamID,
			Type:          tmpl.Type,
			StartsAt:      nextAt,
			Location:      tmpl.Location,
			Notes:         tmpl.Notes,
			Visibility:    tmpl.Visibility,
			MatchLocation: tmpl.MatchLocation,
			IsRecurring:   true,
			Recurrence:    RecurrenceWeekly,
			CreatedBy:     tmpl.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		next, err = svc.repo.CreateEvent(ctx, next)
		if err != nil {
			svc.log.Warn("skipping recurring template", errors.Wrap(err, "creating occurrence of "+tmpl.ID))
			continue
		}
		count++

		// statuses are never carried forward; each occurrence starts unanswered
		var rows []Attendance
		for _, att := range tmpl.Attendance {
			if !att.IsConvoked {
				continue
			}
			rows = append(rows, Attendance{
				EventID:    next.ID,
				PersonID:   att.PersonID,
				Status:     StatusUnknown,
				IsConvoked: true,
				UpdatedAt:  now,
			})
		}
		if len(rows) > 0 {
			if err = svc.repo.UpsertAttendance(ctx, rows...); err != nil {
				svc.log.Warn("copying convocations", errors.Wrap(err, "for occurrence "+next.ID))
			}
		}
	}
	return count, nil
}

func chainKey(typ Type, at time.Time) string {
	return string(typ) + "|" + at.UTC().Format("Mon 15:04")
}

func slotKey(typ Type, at time.Time) string {
	return string(typ) + "|" + at.UTC().Format(time.RFC3339)
}

// CleanupPast hard-deletes the team's events older than yesterday.
func (svc *service) CleanupPast(ctx context.Context, actor user.User, teamID string) (int, error) {
	d, err := svc.can(ctx, actor, actionManageEvents, teamID)
	if err != nil {
		return 0, err
	}
	if err = d.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	return svc.repo.DeleteEventsBefore(ctx, teamID, cutoff)
}

// checkRoster rejects convocation targets that are neither active roster
// players nor team coaches, instead of silently creating orphan rows.
func (svc *service) checkRoster(ctx context.Context, teamID string, personIDs []string) error {
	if len(personIDs) == 0 {
		return nil
	}
	players, err := svc.teams.QueryPlayersByTeam(ctx, teamID)
	if err != nil {
		return errors.Wrap(err, "querying roster")
	}
	coachIDs, err := svc.teams.QueryCoachIDs(ctx, teamID)
	if err != nil {
		return errors.Wrap(err, "querying coaches")
	}
	onTeam := make(map[string]struct{}, len(players)+len(coachIDs))
	for _, p := range players {
		if p.IsActive {
			onTeam[p.ID] = struct{}{}
		}
	}
	for _, id := range coachIDs {
		onTeam[id] = struct{}{}
	}
	for _, id := range personIDs {
		if _, ok := onTeam[id]; !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "updates", Error: errNotOnRoster})
		}
	}
	return nil
}

// notifyConvoked emails the guardians of newly-convoked players. Best effort.
func (svc *service) notifyConvoked(ctx context.Context, evt Event, personIDs []string) {
	byGuardian := make(map[string][]team.Player)
	for _, id := range personIDs {
		p, err := svc.teams.GetPlayerByID(ctx, id)
		if err != nil {
			continue // coach self-convocation or roster change; nothing to notify
		}
		byGuardian[p.GuardianID] = append(byGuardian[p.GuardianID], p)
	}

	var messages []*core.EmailMessage
	for guardianID, players := range byGuardian {
		guardian, err := svc.users.GetUserByID(ctx, guardianID)
		if err != nil || guardian.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: guardian.Name, Address: guardian.Email}},
			Subject:      "Convocation",
			TemplateName: "event-convocation",
			TemplateData: struct {
				Event   Event
				Players []team.Player
			}{evt, players},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
