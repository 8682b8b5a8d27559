package ride_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
	inmemdb "github.com/trezcool/ekipa/storage/database/inmem"
)

type fixture struct {
	svc       ride.Service
	rideRepo  ride.Repository
	eventRepo event.Repository
	teamRepo  team.Repository
	usrRepo   user.Repository

	coach     user.User
	guardian1 user.User
	guardian2 user.User

	team       team.Team
	p1, p2, p3 team.Player
	event      event.Event
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed, %v", err)
	}
	f := &fixture{
		rideRepo:  inmemdb.NewRideRepository(db),
		eventRepo: inmemdb.NewEventRepository(db),
		teamRepo:  inmemdb.NewTeamRepository(db),
		usrRepo:   inmemdb.NewUserRepository(db),
	}

	f.coach = createUser(t, f.usrRepo, "Coach Carter", "coach", "coach@test.cd", user.CoachRoles)
	f.guardian1 = createUser(t, f.usrRepo, "Guardian One", "g1", "g1@test.cd", user.GuardianRoles)
	f.guardian2 = createUser(t, f.usrRepo, "Guardian Two", "g2", "g2@test.cd", user.GuardianRoles)

	f.team, err = f.teamRepo.CreateTeam(ctx, team.Team{Name: "U13 A", Season: "2026-2027"})
	if err != nil {
		t.Fatalf("CreateTeam() failed, %v", err)
	}
	if err = f.teamRepo.AddCoach(ctx, f.team.ID, f.coach.ID); err != nil {
		t.Fatalf("AddCoach() failed, %v", err)
	}
	f.p1 = createPlayer(t, f.teamRepo, f.team.ID, f.guardian1.ID, "Alice", "One")
	f.p2 = createPlayer(t, f.teamRepo, f.team.ID, f.guardian1.ID, "Bob", "One")
	f.p3 = createPlayer(t, f.teamRepo, f.team.ID, f.guardian2.ID, "Carol", "Two")

	now := time.Now().UTC()
	f.event, err = f.eventRepo.CreateEvent(ctx, event.Event{
		TeamID:     f.team.ID,
		Type:       event.TypeMatch,
		StartsAt:   now.AddDate(0, 0, 2),
		Visibility: event.VisibilityPublic,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateEvent() failed, %v", err)
	}

	f.svc = ride.NewService(f.rideRepo, f.eventRepo, f.teamRepo, f.usrRepo)
	return f
}

func createUser(t *testing.T, repo user.Repository, name, uname, email string, roles []string) user.User {
	t.Helper()

	usr := user.User{Name: name, Username: uname, Email: email, IsActive: true, Roles: roles}
	if err := usr.SetPassword("pwd"); err != nil {
		t.Fatalf("SetPassword() failed, %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed, %v", err)
	}
	return usr
}

func createPlayer(t *testing.T, repo team.Repository, teamID, guardianID, first, last string) team.Player {
	t.Helper()

	p, err := repo.CreatePlayer(context.Background(), team.Player{
		TeamID:     teamID,
		GuardianID: guardianID,
		FirstName:  first,
		LastName:   last,
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("CreatePlayer() failed, %v", err)
	}
	return p
}

func setStatus(t *testing.T, f *fixture, personID string, status event.Status) {
	t.Helper()

	err := f.eventRepo.UpsertAttendance(context.Background(), event.Attendance{
		EventID:    f.event.ID,
		PersonID:   personID,
		Status:     status,
		IsConvoked: true,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertAttendance() failed, %v", err)
	}
}

func newRide(personID string, seats int) ride.NewRide {
	return ride.NewRide{
		PersonID:          personID,
		SeatsAvailable:    seats,
		DepartureLocation: "Club House",
		DepartureAt:       time.Now().UTC().AddDate(0, 0, 2),
		Relation:          ride.RelationParentA,
		Mode:              ride.ModePublic,
	}
}

func Test_service_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// the anchor person must be attending
	setStatus(t, f, f.p1.ID, event.StatusUnknown)
	if _, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 3)); errors.Cause(err) != ride.ErrNotEligible {
		t.Errorf("Create() error = %v, want %v", err, ride.ErrNotEligible)
	}

	// guardians may only offer for their own players
	setStatus(t, f, f.p3.ID, event.StatusPresent)
	if _, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p3.ID, 3)); !core.IsPermissionDenied(err) {
		t.Errorf("Create() error = %v, want PermissionError", err)
	}

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 3))
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	if r.DriverID != f.guardian1.ID || r.DriverPersonID != f.p1.ID {
		t.Errorf("ride = %+v, want driver %s anchored on %s", r, f.guardian1.ID, f.p1.ID)
	}

	// one ride per driver per event
	if _, err = f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 2)); errors.Cause(err) != ride.ErrDuplicateRide {
		t.Errorf("Create() error = %v, want %v", err, ride.ErrDuplicateRide)
	}

	// a coach offers a ride anchored on themselves
	setStatus(t, f, f.coach.ID, event.StatusLate)
	nr := newRide(f.coach.ID, 2)
	nr.Relation = ride.RelationCoach
	cr, err := f.svc.Create(ctx, f.coach, f.event.ID, nr)
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	passengers, err := f.rideRepo.QueryPassengers(ctx, cr.ID)
	if err != nil {
		t.Fatalf("QueryPassengers() failed, %v", err)
	}
	if len(passengers) != 1 || passengers[0].Kind != ride.KindCoach {
		t.Errorf("passengers = %+v, want a single coach anchor row", passengers)
	}
}

func Test_service_Create_privateMode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	nr := newRide(f.p1.ID, 3)
	nr.Mode = ride.ModePrivate
	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, nr)
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	if !r.Restricted || r.SeatsAvailable != 0 {
		t.Errorf("ride = %+v, want restricted with 0 seats", r)
	}

	// nobody can join a private ride
	setStatus(t, f, f.p3.ID, event.StatusPresent)
	_, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1})
	if errors.Cause(err) != ride.ErrRideFull {
		t.Errorf("Join() error = %v, want %v", err, ride.ErrRideFull)
	}
}

func Test_service_Join(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 2))
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}

	// rider must be attending
	setStatus(t, f, f.p3.ID, event.StatusAbsent)
	_, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1})
	if errors.Cause(err) != ride.ErrNotEligible {
		t.Errorf("Join() error = %v, want %v", err, ride.ErrNotEligible)
	}

	setStatus(t, f, f.p3.ID, event.StatusPresent)
	p, err := f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1})
	if err != nil {
		t.Fatalf("Join() failed, %v", err)
	}
	if p.RideID != r.ID || p.SeatCount != 1 {
		t.Errorf("passenger = %+v", p)
	}

	// joining twice is a conflict
	_, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1})
	if errors.Cause(err) != ride.ErrAlreadyOnRide {
		t.Errorf("Join() error = %v, want %v", err, ride.ErrAlreadyOnRide)
	}

	// 1 seat left; a rider + accompanying adult does not fit
	setStatus(t, f, f.p2.ID, event.StatusPresent)
	_, err = f.svc.Join(ctx, f.guardian1, r.ID, ride.JoinRide{PersonID: f.p2.ID, Kind: ride.KindPlayer, SeatCount: 2})
	if errors.Cause(err) != ride.ErrRideFull {
		t.Errorf("Join() error = %v, want %v", err, ride.ErrRideFull)
	}
	if _, err = f.svc.Join(ctx, f.guardian1, r.ID, ride.JoinRide{PersonID: f.p2.ID, Kind: ride.KindPlayer, SeatCount: 1}); err != nil {
		t.Fatalf("Join() failed, %v", err)
	}
}

func Test_service_Join_seatRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	setStatus(t, f, f.p2.ID, event.StatusPresent)
	setStatus(t, f, f.p3.ID, event.StatusPresent)

	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 1))
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}

	// two riders race for the last seat; exactly one wins
	joins := []struct {
		actor    user.User
		personID string
	}{
		{actor: f.guardian1, personID: f.p2.ID},
		{actor: f.guardian2, personID: f.p3.ID},
	}
	errs := make([]error, len(joins))
	var wg sync.WaitGroup
	for i, j := range joins {
		wg.Add(1)
		go func(i int, actor user.User, personID string) {
			defer wg.Done()
			_, errs[i] = f.svc.Join(ctx, actor, r.ID, ride.JoinRide{PersonID: personID, Kind: ride.KindPlayer, SeatCount: 1})
		}(i, j.actor, j.personID)
	}
	wg.Wait()

	var wins, fulls int
	for _, err := range errs {
		switch errors.Cause(err) {
		case nil:
			wins++
		case ride.ErrRideFull:
			fulls++
		default:
			t.Errorf("Join() unexpected error = %v", err)
		}
	}
	if wins != 1 || fulls != 1 {
		t.Errorf("wins = %d, fulls = %d; want exactly one of each", wins, fulls)
	}
}

func Test_service_LeaveDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	setStatus(t, f, f.p3.ID, event.StatusPresent)
	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 2))
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	if _, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1}); err != nil {
		t.Fatalf("Join() failed, %v", err)
	}

	// a guardian cannot remove someone else's player
	if err = f.svc.Leave(ctx, f.guardian2, r.ID, f.p1.ID); !core.IsPermissionDenied(err) {
		t.Errorf("Leave() error = %v, want PermissionError", err)
	}

	if err = f.svc.Leave(ctx, f.guardian2, r.ID, f.p3.ID); err != nil {
		t.Fatalf("Leave() failed, %v", err)
	}
	// leaving again is a no-op
	if err = f.svc.Leave(ctx, f.guardian2, r.ID, f.p3.ID); err != nil {
		t.Errorf("Leave() error = %v, want idempotent no-op", err)
	}

	// the driver can remove any passenger
	if _, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 1}); err != nil {
		t.Fatalf("Join() failed, %v", err)
	}
	if err = f.svc.Leave(ctx, f.guardian1, r.ID, f.p3.ID); err != nil {
		t.Fatalf("Leave() failed, %v", err)
	}

	// only the driver may delete the ride
	if err = f.svc.Delete(ctx, f.guardian2, r.ID); !core.IsPermissionDenied(err) {
		t.Errorf("Delete() error = %v, want PermissionError", err)
	}
	if err = f.svc.Delete(ctx, f.guardian1, r.ID); err != nil {
		t.Fatalf("Delete() failed, %v", err)
	}
	if _, err = f.rideRepo.GetRideByID(ctx, r.ID); err != ride.ErrNotFound {
		t.Errorf("GetRideByID() error = %v, want %v", err, ride.ErrNotFound)
	}
}

func Test_service_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	setStatus(t, f, f.p1.ID, event.StatusPresent)
	setStatus(t, f, f.p3.ID, event.StatusPresent)
	setStatus(t, f, f.coach.ID, event.StatusPresent)

	r, err := f.svc.Create(ctx, f.guardian1, f.event.ID, newRide(f.p1.ID, 3))
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	if _, err = f.svc.Join(ctx, f.guardian2, r.ID, ride.JoinRide{PersonID: f.p3.ID, Kind: ride.KindPlayer, SeatCount: 2}); err != nil {
		t.Fatalf("Join() failed, %v", err)
	}

	cnr := newRide(f.coach.ID, 2)
	cnr.Relation = ride.RelationCoach
	if _, err = f.svc.Create(ctx, f.coach, f.event.ID, cnr); err != nil {
		t.Fatalf("Create() failed, %v", err)
	}

	infos, err := f.svc.Query(ctx, f.guardian2, f.event.ID)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}

	byDriver := make(map[string]ride.Info, len(infos))
	for _, info := range infos {
		byDriver[info.DriverID] = info
	}

	// the driver's anchor row never counts against capacity
	g1 := byDriver[f.guardian1.ID]
	if g1.SeatsLeft != 1 {
		t.Errorf("SeatsLeft = %d, want 1", g1.SeatsLeft)
	}
	if g1.DriverName != "Dad of Alice One" {
		t.Errorf("DriverName = %q, want %q", g1.DriverName, "Dad of Alice One")
	}
	if len(g1.Passengers) != 2 {
		t.Errorf("len(Passengers) = %d, want 2", len(g1.Passengers))
	}

	c := byDriver[f.coach.ID]
	if c.SeatsLeft != 2 {
		t.Errorf("SeatsLeft = %d, want 2", c.SeatsLeft)
	}
	if c.DriverName != "Coach Coach Carter" {
		t.Errorf("DriverName = %q, want %q", c.DriverName, "Coach Coach Carter")
	}
}
