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
	"github.com/trezcool/ekipa/core/team"
)

type dbTeam struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Season    sql.NullString `db:"season"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (t dbTeam) toCore() team.Team {
	return team.Team{
		ID:        t.ID,
		Name:      t.Name,
		Season:    t.Season.String,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type dbPlayer struct {
	ID         string        `db:"id"`
	TeamID     string        `db:"team_id"`
	GuardianID string        `db:"guardian_id"`
	FirstName  string        `db:"first_name"`
	LastName   string        `db:"last_name"`
	BirthYear  sql.NullInt64 `db:"birth_year"`
	IsActive   bool          `db:"is_active"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func (p dbPlayer) toCore() team.Player {
	return team.Player{
		ID:         p.ID,
		TeamID:     p.TeamID,
		GuardianID: p.GuardianID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		BirthYear:  int(p.BirthYear.Int64),
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func newDBPlayer(p team.Player) dbPlayer {
	return dbPlayer{
		ID:         p.ID,
		TeamID:     p.TeamID,
		GuardianID: p.GuardianID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		BirthYear:  sql.NullInt64{Int64: int64(p.BirthYear), Valid: p.BirthYear != 0},
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

type dbGroup struct {
	ID          string    `db:"id"`
	TeamID      string    `db:"team_id"`
	Name        string    `db:"name"`
	IsBroadcast bool      `db:"is_broadcast"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (g dbGroup) toCore(memberIDs []string) team.Group {
	return team.Group{
		ID:          g.ID,
		TeamID:      g.TeamID,
		Name:        g.Name,
		IsBroadcast: g.IsBroadcast,
		MemberIDs:   memberIDs,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type teamRepository struct {
	db *sqlx.DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *sqlx.DB) *teamRepository {
	return &teamRepository{db: db}
}

func (repo teamRepository) CreateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	t.ID = uuid.New().String()
	q := `INSERT INTO team (id, name, season, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	season := sql.NullString{String: t.Season, Valid: t.Season != ""}
	if _, err := repo.db.ExecContext(ctx, q, t.ID, t.Name, season, t.CreatedAt.UTC(), t.UpdatedAt.UTC()); err != nil {
		return team.Team{}, errors.Wrap(err, "inserting team")
	}
	return t, nil
}

func (repo teamRepository) GetTeamByID(ctx context.Context, id string) (team.Team, error) {
	if _, err := uuid.Parse(id); err != nil {
		return team.Team{}, team.ErrNotFound
	}
	var t dbTeam
	if err := repo.db.GetContext(ctx, &t, `SELECT * FROM team WHERE id = $1`, id); err != nil {
		return team.Team{}, trapNoRowsErr(err, team.ErrNotFound, "finding team by ID")
	}
	return t.toCore(), nil
}

func (repo teamRepository) QueryTeams(ctx context.Context, ordering ...core.DBOrdering) ([]team.Team, error) {
	q := `SELECT * FROM team`
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += ` ORDER BY ` + strings.Join(orderList, ", ")
	}
	var rows []dbTeam
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying teams")
	}
	teams := make([]team.Team, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, row.toCore())
	}
	return teams, nil
}

func (repo teamRepository) AddCoach(ctx context.Context, teamID, userID string) error {
	q := `INSERT INTO team_coach (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, teamID, userID); err != nil {
		return errors.Wrap(err, "adding coach")
	}
	return nil
}

func (repo teamRepository) IsCoach(ctx context.Context, teamID, userID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM team_coach WHERE team_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &exists, q, teamID, userID); err != nil {
		return false, errors.Wrap(err, "checking coach")
	}
	return exists, nil
}

func (repo teamRepository) QueryCoachIDs(ctx context.Context, teamID string) ([]string, error) {
	var ids []string
	q := `SELECT user_id FROM team_coach WHERE team_id = $1`
	if err := repo.db.SelectContext(ctx, &ids, q, teamID); err != nil {
		return nil, errors.Wrap(err, "querying coaches")
	}
	return ids, nil
}

func (repo teamRepository) CreatePlayer(ctx context.Context, p team.Player) (team.Player, error) {
	p.ID = uuid.New().String()
	row := newDBPlayer(p)
	q := `
INSERT INTO player (id, team_id, guardian_id, first_name, last_name, birth_year, is_active, created_at, updated_at)
VALUES (:id, :team_id, :guardian_id, :first_name, :last_name, :birth_year, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return team.Player{}, errors.Wrap(err, "inserting player")
	}
	return row.toCore(), nil
}

func (repo teamRepository) GetPlayerByID(ctx context.Context, id string) (team.Player, error) {
	if _, err := uuid.Parse(id); err != nil {
		return team.Player{}, team.ErrPlayerNotFound
	}
	var p dbPlayer
	if err := repo.db.GetContext(ctx, &p, `SELECT * FROM player WHERE id = $1`, id); err != nil {
		return team.Player{}, trapNoRowsErr(err, team.ErrPlayerNotFound, "finding player by ID")
	}
	return p.toCore(), nil
}

func (repo teamRepository) QueryPlayersByTeam(ctx context.Context, teamID string) ([]team.Player, error) {
	var rows []dbPlayer
	q := `SELECT * FROM player WHERE team_id = $1 ORDER BY last_name, first_name`
	if err := repo.db.SelectContext(ctx, &rows, q, teamID); err != nil {
		return nil, errors.Wrap(err, "querying players")
	}
	players := make([]team.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toCore())
	}
	return players, nil
}

func (repo teamRepository) QueryPlayersByGuardian(ctx context.Context, teamID, guardianID string) ([]team.Player, error) {
	var rows []dbPlayer
	q := `SELECT * FROM player WHERE team_id = $1 AND guardian_id = $2`
	if err := repo.db.SelectContext(ctx, &rows, q, teamID, guardianID); err != nil {
		return nil, errors.Wrap(err, "querying guardian players")
	}
	players := make([]team.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, row.toCore())
	}
	return players, nil
}

func (repo teamRepository) UpdatePlayer(ctx context.Context, p team.Player, isActive *bool) (team.Player, error) {
	sets := []string{"updated_at = :updated_at"}
	row := newDBPlayer(p)
	if p.GuardianID != "" {
		sets = append(sets, "guardian_id = :guardian_id")
	}
	if p.FirstName != "" {
		sets = append(sets, "first_name = :first_name")
	}
	if p.LastName != "" {
		sets = append(sets, "last_name = :last_name")
	}
	if p.BirthYear != 0 {
		sets = append(sets, "birth_year = :birth_year")
	}
	if isActive != nil {
		row.IsActive = *isActive
		sets = append(sets, "is_active = :is_active")
	}

	q := `UPDATE player SET ` + strings.Join(sets, ", ") + ` WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return team.Player{}, errors.Wrap(err, "updating player")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return team.Player{}, team.ErrPlayerNotFound
	}
	return repo.GetPlayerByID(ctx, p.ID)
}

func (repo teamRepository) CreateGroup(ctx context.Context, g team.Group) (team.Group, error) {
	g.ID = uuid.New().String()
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return team.Group{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO "group" (id, team_id, name, is_broadcast, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, q, g.ID, g.TeamID, g.Name, g.IsBroadcast, g.CreatedAt.UTC(), g.UpdatedAt.UTC()); err != nil {
		return team.Group{}, errors.Wrap(err, "inserting group")
	}
	if err = insertGroupMembers(ctx, tx, g.ID, g.MemberIDs); err != nil {
		return team.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return team.Group{}, errors.Wrap(err, "committing tx")
	}
	return g, nil
}

func insertGroupMembers(ctx context.Context, tx *sqlx.Tx, groupID string, memberIDs []string) error {
	for _, id := range memberIDs {
		q := `INSERT INTO group_member (group_id, member_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, q, groupID, id); err != nil {
			return errors.Wrap(err, "inserting group member")
		}
	}
	return nil
}

func (repo teamRepository) GetGroupByID(ctx context.Context, id string) (team.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return team.Group{}, team.ErrGroupNotFound
	}
	var g dbGroup
	if err := repo.db.GetContext(ctx, &g, `SELECT * FROM "group" WHERE id = $1`, id); err != nil {
		return team.Group{}, trapNoRowsErr(err, team.ErrGroupNotFound, "finding group by ID")
	}
	members, err := repo.queryGroupMembers(ctx, id)
	if err != nil {
		return team.Group{}, err
	}
	return g.toCore(members), nil
}

func (repo teamRepository) queryGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	q := `SELECT member_id FROM group_member WHERE group_id = $1`
	if err := repo.db.SelectContext(ctx, &ids, q, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	return ids, nil
}

func (repo teamRepository) QueryGroupsByTeam(ctx context.Context, teamID string) ([]team.Group, error) {
	var rows []dbGroup
	q := `SELECT * FROM "group" WHERE team_id = $1 ORDER BY name`
	if err := repo.db.SelectContext(ctx, &rows, q, teamID); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]team.Group, 0, len(rows))
	for _, row := range rows {
		members, err := repo.queryGroupMembers(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, row.toCore(members))
	}
	return groups, nil
}

func (repo teamRepository) SetGroupMembers(ctx context.Context, groupID string, memberIDs []string) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM group_member WHERE group_id = $1`, groupID); err != nil {
		return errors.Wrap(err, "clearing group members")
	}
	if err = insertGroupMembers(ctx, tx, groupID, memberIDs); err != nil {
		return err
	}
	q := `UPDATE "group" SET updated_at = $1 WHERE id = $2`
	if _, err = tx.ExecContext(ctx, q, time.Now().UTC(), groupID); err != nil {
		return errors.Wrap(err, "updating group")
	}
	return errors.Wrap(tx.Commit(), "committing tx")
}

func (repo teamRepository) DeleteGroup(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM "group" WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return nil
}
