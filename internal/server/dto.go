package server

import (
	"crease/internal/domain"
	"crease/internal/engine"
)

type PlayerRequest struct {
	ID   string `json:"id,omitempty" doc:"Optional stable id; generated when empty"`
	Name string `json:"name" minLength:"1"`
}

type TeamRequest struct {
	Name    string          `json:"name" minLength:"1"`
	Players []PlayerRequest `json:"players"`
}

type CreateGameRequest struct {
	ID          string      `json:"id,omitempty"`
	Format      string      `json:"format,omitempty" enum:"t20,odi,first_class,custom"`
	MaxOvers    int         `json:"max_overs,omitempty" minimum:"0"`
	Days        int         `json:"days,omitempty" minimum:"0"`
	OversPerDay int         `json:"overs_per_day,omitempty" minimum:"0"`
	DLS         *bool       `json:"dls_enabled,omitempty"`
	FreeHit     *bool       `json:"free_hit,omitempty"`
	G50         *float64    `json:"g50,omitempty"`
	Home        TeamRequest `json:"home"`
	Away        TeamRequest `json:"away"`
}

func (r CreateGameRequest) options(scorerID string) engine.CreateGameOptions {
	team := func(t TeamRequest) engine.TeamInput {
		in := engine.TeamInput{Name: t.Name}
		for _, p := range t.Players {
			in.Players = append(in.Players, engine.PlayerInput{ID: p.ID, Name: p.Name})
		}
		return in
	}
	return engine.CreateGameOptions{
		ID:       r.ID,
		Format:   r.Format,
		MaxOvers: r.MaxOvers,
		Days:     r.Days,
		OversPer: r.OversPerDay,
		DLS:      r.DLS,
		FreeHit:  r.FreeHit,
		G50:      r.G50,
		Home:     team(r.Home),
		Away:     team(r.Away),
		ScorerID: scorerID,
	}
}

type TossRequest struct {
	WinnerTeamID string `json:"winner_team_id" minLength:"1"`
	Decision     string `json:"decision" enum:"bat,bowl"`
}

type StartInningsRequest struct {
	StrikerID    string `json:"striker_id" minLength:"1"`
	NonStrikerID string `json:"non_striker_id" minLength:"1"`
}

type NextBatterRequest struct {
	PlayerID string `json:"player_id" minLength:"1"`
}

type StartOverRequest struct {
	BowlerID string `json:"bowler_id" minLength:"1"`
}

type InterruptionRequest struct {
	Kind string `json:"kind" enum:"weather,injury,light,other"`
	Note string `json:"note,omitempty"`
}

type EndInterruptionRequest struct {
	Kind string `json:"kind,omitempty" enum:"weather,injury,light,other"`
}

type ReduceOversRequest struct {
	Innings  int `json:"innings" minimum:"1" maximum:"2"`
	MaxOvers int `json:"max_overs" minimum:"1"`
}

type AbandonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type GameSummary struct {
	ID       string `json:"id"`
	Format   string `json:"format"`
	Home     string `json:"home"`
	Away     string `json:"away"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	Created  string `json:"created_at"`
	MaxOvers int    `json:"max_overs,omitempty"`
}

func summarize(g domain.Game) GameSummary {
	return GameSummary{
		ID:       g.ID,
		Format:   g.Settings.Format,
		Home:     g.HomeTeam.Name,
		Away:     g.AwayTeam.Name,
		Status:   g.Status,
		Result:   g.Result,
		Created:  g.CreatedAt,
		MaxOvers: g.Settings.MaxOvers,
	}
}
