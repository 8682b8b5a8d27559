package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/team"
)

type teamRepository struct {
	db *DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *DB) *teamRepository {
	return &teamRepository{db: db}
}

func (repo *teamRepository) CreateTeam(_ context.Context, t team.Team) (team.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = uuid.New().String()
	repo.db.teams[t.ID] = &t
	return t, nil
}

func (repo *teamRepository) GetTeamByID(_ context.Context, id string) (team.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.teams[id]; ok {
		return *t, nil
	}
	return team.Team{}, team.ErrNotFound
}

func (repo *teamRepository) QueryTeams(_ context.Context, _ ...core.DBOrdering) ([]team.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	teams := make([]team.Team, 0, len(repo.db.teams))
	for _, t := range repo.db.teams {
		teams = append(teams, *t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func (repo *teamRepository) AddCoach(_ context.Context, teamID, userID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range repo.db.coaches[teamID] {
		if id == userID {
			return nil
		}
	}
	repo.db.coaches[teamID] = append(repo.db.coaches[teamID], userID)
	return nil
}

func (repo *teamRepository) IsCoach(_ context.Context, teamID, userID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, id := range repo.db.coaches[teamID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *teamRepository) QueryCoachIDs(_ context.Context, teamID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, len(repo.db.coaches[teamID]))
	copy(ids, repo.db.coaches[teamID])
	return ids, nil
}

func (repo *teamRepository) CreatePlayer(_ context.Context, p team.Player) (team.Player, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = uuid.New().String()
	repo.db.players[p.ID] = &p
	return p, nil
}

func (repo *teamRepository) GetPlayerByID(_ context.Context, id string) (team.Player, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.players[id]; ok {
		return *p, nil
	}
	return team.Player{}, team.ErrPlayerNotFound
}

func (repo *teamRepository) QueryPlayersByTeam(_ context.Context, teamID string) ([]team.Player, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	players := make([]team.Player, 0)
	for _, p := range repo.db.players {
		if p.TeamID == teamID {
			players = append(players, *p)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].FullName() < players[j].FullName() })
	return players, nil
}

func (repo *teamRepository) QueryPlayersByGuardian(_ context.Context, teamID, guardianID string) ([]team.Player, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	players := make([]team.Player, 0)
	for _, p := range repo.db.players {
		if p.TeamID == teamID && p.GuardianID == guardianID {
			players = append(players, *p)
		}
	}
	return players, nil
}

func (repo *teamRepository) UpdatePlayer(_ context.Context, p team.Player, isActive *bool) (team.Player, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.players[p.ID]
	if !ok {
		return team.Player{}, team.ErrPlayerNotFound
	}
	if p.GuardianID != "" {
		orig.GuardianID = p.GuardianID
	}
	if p.FirstName != "" {
		orig.FirstName = p.FirstName
	}
	if p.LastName != "" {
		orig.LastName = p.LastName
	}
	if p.BirthYear != 0 {
		orig.BirthYear = p.BirthYear
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = p.UpdatedAt
	return *orig, nil
}

func (repo *teamRepository) CreateGroup(_ context.Context, g team.Group) (team.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g.ID = uuid.New().String()
	repo.db.groups[g.ID] = &g
	return g, nil
}

func (repo *teamRepository) GetGroupByID(_ context.Context, id string) (team.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.groups[id]; ok {
		return *g, nil
	}
	return team.Group{}, team.ErrGroupNotFound
}

func (repo *teamRepository) QueryGroupsByTeam(_ context.Context, teamID string) ([]team.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]team.Group, 0)
	for _, g := range repo.db.groups {
		if g.TeamID == teamID {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (repo *teamRepository) SetGroupMembers(_ context.Context, groupID string, memberIDs []string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g, ok := repo.db.groups[groupID]
	if !ok {
		return team.ErrGroupNotFound
	}
	g.MemberIDs = memberIDs
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *teamRepository) DeleteGroup(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.groups, id)
	return nil
}
