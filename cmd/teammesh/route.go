package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/teammesh"
	"github.com/hupe1980/teammesh/config"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/router"
)

var (
	routeTeam string
	routeUser string
)

var routeCmd = &cobra.Command{
	Use:     `route "Agent:::message"`,
	Short:   "Route one message and print the response as JSON",
	Example: `  teammesh route --team ops --user alice "Scout:::When is the launch?"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRoute,
}

func init() {
	routeCmd.Flags().StringVarP(&routeTeam, "team", "t", "", "team name")
	routeCmd.Flags().StringVarP(&routeUser, "user", "u", "cli", "user id")
	_ = routeCmd.MarkFlagRequired("team")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)

	teams, err := config.LoadTeams(cfg.TeamsDir)
	if err != nil {
		return err
	}

	team, ok := config.NewTeamSet(teams...).Get(routeTeam)
	if !ok {
		return fmt.Errorf("unknown team %q", routeTeam)
	}

	mesh, closeMesh, err := teammesh.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeMesh() //nolint:errcheck

	resp, err := mesh.Route(cmd.Context(), router.Request{
		Message: strings.Join(args, " "),
		Team:    team,
		Session: &core.SessionState{UserID: routeUser},
		RunID:   core.NewID(),
	})
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.New("message is not addressed to an agent; use Name" + router.Delimiter + "message")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(resp)
}
