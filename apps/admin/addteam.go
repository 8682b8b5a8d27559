package main

import (
	"context"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/team"
)

// addTeam creates a team.Team, optionally assigning an existing user as coach.
func (cli *commandLine) addTeam(name, season, coach string) error {
	ctx := context.Background()

	t, err := cli.teamRepo.CreateTeam(ctx, team.Team{
		Name:   core.CleanString(name),
		Season: core.CleanString(season),
	})
	if err != nil {
		return err
	}

	if coach != "" {
		usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, core.CleanString(coach, true /* lower */))
		if err != nil {
			return err
		}
		return cli.teamRepo.AddCoach(ctx, t.ID, usr.ID)
	}
	return nil
}
