package team

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("team not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrGroupNotFound  = errors.New("group not found")

	errNotOnTeam = "person is not on the team"
)

// capability actions
const (
	actionManageTeams  = "team:manage"
	actionManageRoster = "team:roster"
	actionManageGroups = "team:groups"
)

type (
	Repository interface {
		CreateTeam(ctx context.Context, t Team) (Team, error)
		GetTeamByID(ctx context.Context, id string) (Team, error)
		QueryTeams(ctx context.Context, ordering ...core.DBOrdering) ([]Team, error)
		AddCoach(ctx context.Context, teamID, userID string) error
		IsCoach(ctx context.Context, teamID, userID string) (bool, error)
		QueryCoachIDs(ctx context.Context, teamID string) ([]string, error)

		CreatePlayer(ctx context.Context, p Player) (Player, error)
		GetPlayerByID(ctx context.Context, id string) (Player, error)
		QueryPlayersByTeam(ctx context.Context, teamID string) ([]Player, error)
		QueryPlayersByGuardian(ctx context.Context, teamID, guardianID string) ([]Player, error)
		UpdatePlayer(ctx context.Context, p Player, isActive *bool) (Player, error)

		CreateGroup(ctx context.Context, g Group) (Group, error)
		GetGroupByID(ctx context.Context, id string) (Group, error)
		QueryGroupsByTeam(ctx context.Context, teamID string) ([]Group, error)
		SetGroupMembers(ctx context.Context, groupID string, memberIDs []string) error
		DeleteGroup(ctx context.Context, id string) error
	}

	Service interface {
		CreateTeam(ctx context.Context, actor user.User, nt NewTeam) (Team, error)
		GetTeam(ctx context.Context, id string) (Team, error)
		QueryTeams(ctx context.Context) ([]Team, error)
		AddCoach(ctx context.Context, actor user.User, teamID, userID string) error

		AddPlayer(ctx context.Context, actor user.User, teamID string, np NewPlayer) (Player, error)
		UpdatePlayer(ctx context.Context, actor user.User, playerID string, up UpdatePlayer) (Player, error)
		QueryRoster(ctx context.Context, teamID string) ([]Player, error)
		QueryGuardianPlayers(ctx context.Context, teamID, guardianID string) ([]Player, error)

		CreateGroup(ctx context.Context, actor user.User, teamID string, ng NewGroup) (Group, error)
		SetGroupMembers(ctx context.Context, actor user.User, groupID string, memberIDs []string) (Group, error)
		QueryGroups(ctx context.Context, teamID string) ([]Group, error)
		DeleteGroup(ctx context.Context, actor user.User, groupID string) error
	}

	service struct {
		repo  Repository
		users user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users user.Repository) Service {
	return &service{
		repo:  repo,
		users: users,
	}
}

// can is the capability check run before every mutating operation.
func (svc *service) can(ctx context.Context, actor user.User, action, teamID string) (core.Decision, error) {
	if actor.IsAdmin() {
		return core.Permit(), nil
	}
	switch action {
	case actionManageTeams:
		return core.Refuse("admin role required"), nil
	case actionManageRoster, actionManageGroups:
		if !actor.IsCoach() {
			return core.Refuse("coach role required"), nil
		}
		isCoach, err := svc.repo.IsCoach(ctx, teamID, actor.ID)
		if err != nil {
			return core.Decision{}, errors.Wrap(err, "checking team coach")
		}
		if !isCoach {
			return core.Refuse("not a coach of this team"), nil
		}
		return core.Permit(), nil
	}
	return core.Refuse("unknown action"), nil
}

func (svc *service) CreateTeam(ctx context.Context, actor user.User, nt NewTeam) (Team, error) {
	if err := nt.Validate(); err != nil {
		return Team{}, err
	}
	d, err := svc.can(ctx, actor, actionManageTeams, "")
	if err != nil {
		return Team{}, err
	}
	if err = d.Err(); err != nil {
		return Team{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateTeam(ctx, Team{
		Name:      nt.Name,
		Season:    nt.Season,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) GetTeam(ctx context.Context, id string) (Team, error) {
	return svc.repo.GetTeamByID(ctx, id)
}

func (svc *service) QueryTeams(ctx context.Context) ([]Team, error) {
	return svc.repo.QueryTeams(ctx, core.DBOrdering{Field: "name", Ascending: true})
}

func (svc *service) AddCoach(ctx context.Context, actor user.User, teamID, userID string) error {
	d, err := svc.can(ctx, actor, actionManageTeams, teamID)
	if err != nil {
		return err
	}
	if err = d.Err(); err != nil {
		return err
	}

	coach, err := svc.users.GetUserByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "finding coach user")
	}
	if !coach.IsCoach() {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user does not have the coach role"})
	}
	if _, err = svc.repo.GetTeamByID(ctx, teamID); err != nil {
		return err
	}
	return svc.repo.AddCoach(ctx, teamID, userID)
}

func (svc *service) AddPlayer(ctx context.Context, actor user.User, teamID string, np NewPlayer) (Player, error) {
	if err := np.Validate(); err != nil {
		return Player{}, err
	}
	d, err := svc.can(ctx, actor, actionManageRoster, teamID)
	if err != nil {
		return Player{}, err
	}
	if err = d.Err(); err != nil {
		return Player{}, err
	}

	guardian, err := svc.users.GetUserByID(ctx, np.GuardianID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Player{}, core.NewValidationError(err, core.FieldError{Field: "guardian_id", Error: "guardian not found"})
		}
		return Player{}, errors.Wrap(err, "finding guardian user")
	}
	if !guardian.IsGuardian() {
		return Player{}, core.NewValidationError(nil, core.FieldError{Field: "guardian_id", Error: "user does not have the guardian role"})
	}

	now := time.Now().UTC()
	return svc.repo.CreatePlayer(ctx, Player{
		TeamID:     teamID,
		GuardianID: np.GuardianID,
		FirstName:  np.FirstName,
		LastName:   np.LastName,
		BirthYear:  np.BirthYear,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func (svc *service) UpdatePlayer(ctx context.Context, actor user.User, playerID string, up UpdatePlayer) (Player, error) {
	if err := up.Validate(); err != nil {
		return Player{}, err
	}
	p, err := svc.repo.GetPlayerByID(ctx, playerID)
	if err != nil {
		return Player{}, err
	}
	d, err := svc.can(ctx, actor, actionManageRoster, p.TeamID)
	if err != nil {
		return Player{}, err
	}
	if err = d.Err(); err != nil {
		return Player{}, err
	}

	return svc.repo.UpdatePlayer(ctx, Player{
		ID:         playerID,
		GuardianID: up.GuardianID,
		FirstName:  up.FirstName,
		LastName:   up.LastName,
		BirthYear:  up.BirthYear,
		UpdatedAt:  time.Now().UTC(),
	}, up.IsActive)
}

func (svc *service) QueryRoster(ctx context.Context, teamID string) ([]Player, error) {
	return svc.repo.QueryPlayersByTeam(ctx, teamID)
}

func (svc *service) QueryGuardianPlayers(ctx context.Context, teamID, guardianID string) ([]Player, error) {
	return svc.repo.QueryPlayersByGuardian(ctx, teamID, guardianID)
}

func (svc *service) CreateGroup(ctx context.Context, actor user.User, teamID string, ng NewGroup) (Group, error) {
	if err := ng.Validate(); err != nil {
		return Group{}, err
	}
	d, err := svc.can(ctx, actor, actionManageGroups, teamID)
	if err != nil {
		return Group{}, err
	}
	if err = d.Err(); err != nil {
		return Group{}, err
	}
	if err = svc.checkMembers(ctx, teamID, ng.MemberIDs); err != nil {
		return Group{}, err
	}

	now := time.Now().UTC()
	g, err := svc.repo.CreateGroup(ctx, Group{
		TeamID:      teamID,
		Name:        ng.Name,
		IsBroadcast: ng.IsBroadcast,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Group{}, err
	}
	if len(ng.MemberIDs) > 0 {
		if err = svc.repo.SetGroupMembers(ctx, g.ID, ng.MemberIDs); err != nil {
			return Group{}, errors.Wrap(err, "setting group members")
		}
		g.MemberIDs = ng.MemberIDs
	}
	return g, nil
}

// SetGroupMembers replaces the group's membership with the provided set.
func (svc *service) SetGroupMembers(ctx context.Context, actor user.User, groupID string, memberIDs []string) (Group, error) {
	g, err := svc.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	d, err := svc.can(ctx, actor, actionManageGroups, g.TeamID)
	if err != nil {
		return Group{}, err
	}
	if err = d.Err(); err != nil {
		return Group{}, err
	}
	if err = svc.checkMembers(ctx, g.TeamID, memberIDs); err != nil {
		return Group{}, err
	}

	if err = svc.repo.SetGroupMembers(ctx, groupID, memberIDs); err != nil {
		return Group{}, errors.Wrap(err, "setting group members")
	}
	g.MemberIDs = memberIDs
	return g, nil
}

func (svc *service) QueryGroups(ctx context.Context, teamID string) ([]Group, error) {
	return svc.repo.QueryGroupsByTeam(ctx, teamID)
}

func (svc *service) DeleteGroup(ctx context.Context, actor user.User, groupID string) error {
	g, err := svc.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	d, err := svc.can(ctx, actor, actionManageGroups, g.TeamID)
	if err != nil {
		return err
	}
	if err = d.Err(); err != nil {
		return err
	}
	return svc.repo.DeleteGroup(ctx, groupID)
}

// checkMembers rejects member ids that are neither roster players nor team coaches.
func (svc *service) checkMembers(ctx context.Context, teamID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	players, err := svc.repo.QueryPlayersByTeam(ctx, teamID)
	if err != nil {
		return errors.Wrap(err, "querying roster")
	}
	coachIDs, err := svc.repo.QueryCoachIDs(ctx, teamID)
	if err != nil {
		return errors.Wrap(err, "querying coaches")
	}

	onTeam := make(map[string]struct{}, len(players)+len(coachIDs))
	for _, p := range players {
		onTeam[p.ID] = struct{}{}
	}
	for _, id := range coachIDs {
		onTeam[id] = struct{}{}
	}
	for _, id := range memberIDs {
		if _, ok := onTeam[id]; !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "member_ids", Error: errNotOnTeam})
		}
	}
	return nil
}
