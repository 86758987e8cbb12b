package domain

import "fmt"

// Match formats.
const (
	FormatT20        = "t20"
	FormatODI        = "odi"
	FormatFirstClass = "first_class"
	FormatCustom     = "custom"
)

// Game statuses.
const (
	GameNotStarted   = "not_started"
	GameInProgress   = "in_progress"
	GameInningsBreak = "innings_break"
	GameCompleted    = "completed"
)

// Innings statuses.
const (
	InningsInProgress = "in_progress"
	InningsCompleted  = "completed"
)

// Extra types. A plain delivery has an empty extra type.
const (
	ExtraWide   = "wide"
	ExtraNoBall = "no_ball"
	ExtraBye    = "bye"
	ExtraLegBye = "leg_bye"
)

// Dismissal types.
const (
	DismissalBowled      = "bowled"
	DismissalCaught      = "caught"
	DismissalLBW         = "lbw"
	DismissalRunOut      = "run_out"
	DismissalStumped     = "stumped"
	DismissalHitWicket   = "hit_wicket"
	DismissalHitTwice    = "hit_twice"
	DismissalObstruction = "obstruction"
	DismissalHandledBall = "handled_ball"
)

// Gate identifies the follow-up command blocking further play.
type Gate string

const (
	GateNone   Gate = ""
	GateBatter Gate = "batter"
	GateOver   Gate = "over"
)

// Ends of the pitch a batter can occupy.
const (
	EndStriker    = "striker"
	EndNonStriker = "non_striker"
)

// Interruption kinds.
const (
	InterruptionWeather = "weather"
	InterruptionInjury  = "injury"
	InterruptionLight   = "light"
	InterruptionOther   = "other"
)

type Player struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	Name         string `json:"name"`
	BattingOrder int    `json:"batting_order"`
}

type Team struct {
	ID      string   `json:"id"`
	GameID  string   `json:"game_id"`
	Name    string   `json:"name"`
	Home    bool     `json:"home"`
	Players []Player `json:"players,omitempty"`
}

// Settings is the per-game rule configuration, fixed at creation.
type Settings struct {
	Format         string  `json:"format" enum:"t20,odi,first_class,custom"`
	MaxOvers       int     `json:"max_overs,omitempty"`
	Days           int     `json:"days,omitempty"`
	OversPerDay    int     `json:"overs_per_day,omitempty"`
	BallsPerOver   int     `json:"balls_per_over"`
	PlayersPerSide int     `json:"players_per_side"`
	DLSEnabled     bool    `json:"dls_enabled"`
	FreeHit        bool    `json:"free_hit"`
	G50            float64 `json:"g50"`
}

// Limited reports whether the format caps overs per innings.
func (s Settings) Limited() bool { return s.MaxOvers > 0 }

type Game struct {
	ID             string   `json:"id"`
	Settings       Settings `json:"settings"`
	HomeTeam       Team     `json:"home_team"`
	AwayTeam       Team     `json:"away_team"`
	TossWinnerID   string   `json:"toss_winner_id,omitempty"`
	TossDecision   string   `json:"toss_decision,omitempty" enum:"bat,bowl"`
	CurrentInnings int      `json:"current_innings"`
	Status         string   `json:"status" enum:"not_started,in_progress,innings_break,completed"`
	Result         string   `json:"result,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
}

// Team returns the team with the given id, if it belongs to the game.
func (g Game) Team(id string) (Team, bool) {
	if g.HomeTeam.ID == id {
		return g.HomeTeam, true
	}
	if g.AwayTeam.ID == id {
		return g.AwayTeam, true
	}
	return Team{}, false
}

// PlayerTeam returns the team a player belongs to.
func (g Game) PlayerTeam(playerID string) (Team, bool) {
	for _, t := range []Team{g.HomeTeam, g.AwayTeam} {
		for _, p := range t.Players {
			if p.ID == playerID {
				return t, true
			}
		}
	}
	return Team{}, false
}

type ExtrasBreakdown struct {
	Wides   int `json:"wides"`
	NoBalls int `json:"no_balls"`
	Byes    int `json:"byes"`
	LegByes int `json:"leg_byes"`
	Penalty int `json:"penalty"`
}

func (x ExtrasBreakdown) Total() int {
	return x.Wides + x.NoBalls + x.Byes + x.LegByes + x.Penalty
}

// Innings is the cached projection of one innings' delivery log.
type Innings struct {
	GameID        string          `json:"game_id"`
	Number        int             `json:"number"`
	BattingTeamID string          `json:"batting_team_id"`
	BowlingTeamID string          `json:"bowling_team_id"`
	Runs          int             `json:"runs"`
	Wickets       int             `json:"wickets"`
	LegalBalls    int             `json:"legal_balls"`
	Extras        ExtrasBreakdown `json:"extras"`
	Target        *int            `json:"target,omitempty"`
	MaxOvers      int             `json:"max_overs"`
	StrikerID     string          `json:"striker_id,omitempty"`
	NonStrikerID  string          `json:"non_striker_id,omitempty"`
	BowlerID      string          `json:"bowler_id,omitempty"`
	PrevBowlerID  string          `json:"prev_bowler_id,omitempty"`
	PendingBatter bool            `json:"pending_batter"`
	PendingOver   bool            `json:"pending_over"`
	DismissedEnd  string          `json:"dismissed_end,omitempty"`
	FreeHit       bool            `json:"free_hit_pending"`
	OverRuns      int             `json:"-"`
	OversToday    int             `json:"-"`
	Status        string          `json:"status" enum:"in_progress,completed"`
}

// Gate returns the first unresolved gate blocking a delivery. A wicket on the
// final ball of an over leaves both gates open; the batter gate resolves
// first.
func (i Innings) Gate() Gate {
	if i.PendingBatter {
		return GateBatter
	}
	if i.PendingOver {
		return GateOver
	}
	return GateNone
}

// Overs renders legal balls as the conventional overs string, e.g. "12.4".
func (i Innings) Overs(ballsPerOver int) string {
	if ballsPerOver <= 0 {
		ballsPerOver = 6
	}
	return fmt.Sprintf("%d.%d", i.LegalBalls/ballsPerOver, i.LegalBalls%ballsPerOver)
}

// Delivery is one immutable entry in the append-only match log.
type Delivery struct {
	ID            int64  `json:"id"`
	GameID        string `json:"game_id"`
	Innings       int    `json:"innings"`
	Over          int    `json:"over"`
	BallInOver    int    `json:"ball_in_over"`
	StrikerID     string `json:"striker_id"`
	NonStrikerID  string `json:"non_striker_id"`
	BowlerID      string `json:"bowler_id"`
	RunsOffBat    int    `json:"runs_off_bat"`
	ExtraType     string `json:"extra_type,omitempty" enum:"wide,no_ball,bye,leg_bye"`
	ExtraRuns     int    `json:"extra_runs"`
	PenaltyRuns   int    `json:"penalty_runs,omitempty"`
	Wicket        bool   `json:"is_wicket"`
	DismissalType string `json:"dismissal_type,omitempty"`
	DismissedID   string `json:"dismissed_player_id,omitempty"`
	FielderID     string `json:"fielder_id,omitempty"`
	FreeHit       bool   `json:"free_hit,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Legal reports whether the delivery counts toward the over.
func (d Delivery) Legal() bool {
	return d.ExtraType != ExtraWide && d.ExtraType != ExtraNoBall
}

type BattingEntry struct {
	GameID        string `json:"game_id"`
	Innings       int    `json:"innings"`
	PlayerID      string `json:"player_id"`
	Position      int    `json:"position"`
	Runs          int    `json:"runs"`
	Balls         int    `json:"balls"`
	Fours         int    `json:"fours"`
	Sixes         int    `json:"sixes"`
	Out           bool   `json:"out"`
	DismissalType string `json:"dismissal_type,omitempty"`
	BowlerID      string `json:"bowler_id,omitempty"`
	FielderID     string `json:"fielder_id,omitempty"`
}

type BowlingEntry struct {
	GameID   string `json:"game_id"`
	Innings  int    `json:"innings"`
	PlayerID string `json:"player_id"`
	Balls    int    `json:"balls"`
	Runs     int    `json:"runs"`
	Wickets  int    `json:"wickets"`
	Maidens  int    `json:"maidens"`
}

type FallOfWicket struct {
	Wicket   int    `json:"wicket"`
	Score    int    `json:"score"`
	Over     int    `json:"over"`
	Ball     int    `json:"ball"`
	PlayerID string `json:"player_id"`
}

type Interruption struct {
	ID        int64  `json:"id"`
	GameID    string `json:"game_id"`
	Innings   int    `json:"innings"`
	Kind      string `json:"kind" enum:"weather,injury,light,other"`
	StartedAt string `json:"started_at" format:"date-time"`
	EndedAt   string `json:"ended_at,omitempty" format:"date-time"`
	Note      string `json:"note,omitempty"`
}

// OversRevision records a mid-innings shortening and the state at the moment
// it was applied, which is what the DLS resource accounting folds over.
type OversRevision struct {
	ID          int64  `json:"id"`
	GameID      string `json:"game_id"`
	Innings     int    `json:"innings"`
	BallsBefore int    `json:"balls_remaining_before"`
	BallsAfter  int    `json:"balls_remaining_after"`
	Wickets     int    `json:"wickets"`
	OldMax      int    `json:"old_max_overs"`
	NewMax      int    `json:"new_max_overs"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	GameID     string `json:"game_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ScorerID   string `json:"scorer_id"`
	Payload    string `json:"payload_json"`
}

// BatterView is a batting line in a snapshot.
type BatterView struct {
	PlayerID   string  `json:"player_id"`
	Name       string  `json:"name"`
	Runs       int     `json:"runs"`
	Balls      int     `json:"balls"`
	Fours      int     `json:"fours"`
	Sixes      int     `json:"sixes"`
	StrikeRate float64 `json:"strike_rate"`
	Out        bool    `json:"out"`
	Dismissal  string  `json:"dismissal,omitempty"`
	OnStrike   bool    `json:"on_strike,omitempty"`
}

// BowlerView is a bowling line in a snapshot.
type BowlerView struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name"`
	Overs    string  `json:"overs"`
	Runs     int     `json:"runs"`
	Wickets  int     `json:"wickets"`
	Maidens  int     `json:"maidens"`
	Economy  float64 `json:"economy"`
}

type InningsView struct {
	Number        int             `json:"number"`
	BattingTeam   string          `json:"batting_team"`
	BowlingTeam   string          `json:"bowling_team"`
	Runs          int             `json:"runs"`
	Wickets       int             `json:"wickets"`
	Overs         string          `json:"overs"`
	RunRate       float64         `json:"run_rate"`
	Extras        ExtrasBreakdown `json:"extras"`
	Target        *int            `json:"target,omitempty"`
	MaxOvers      int             `json:"max_overs"`
	Batting       []BatterView    `json:"batting"`
	Bowling       []BowlerView    `json:"bowling"`
	FallOfWickets []FallOfWicket  `json:"fall_of_wickets"`
	Status        string          `json:"status"`
}

// DLSView is the rain-adjustment figure block of a snapshot.
type DLSView struct {
	G50       float64 `json:"g50"`
	R1        float64 `json:"r1"`
	R2        float64 `json:"r2"`
	R2Used    float64 `json:"r2_used"`
	Target    int     `json:"target"`
	Par       float64 `json:"par"`
	AheadBy   *int    `json:"ahead_by,omitempty"`
	Applies   bool    `json:"applies"`
	FirstRuns int     `json:"first_innings_runs"`
}

// Snapshot is the only state external collaborators read.
type Snapshot struct {
	GameID         string         `json:"game_id"`
	Status         string         `json:"status"`
	Result         string         `json:"result,omitempty"`
	CurrentInnings int            `json:"current_innings"`
	Gate           Gate           `json:"gate" enum:",batter,over"`
	PendingBatter  bool           `json:"pending_batter"`
	PendingOver    bool           `json:"pending_over"`
	FreeHit        bool           `json:"free_hit_pending,omitempty"`
	Eligible       []Player       `json:"eligible_batters,omitempty"`
	Innings        []InningsView  `json:"innings"`
	Interruptions  []Interruption `json:"interruptions,omitempty"`
	DLS            *DLSView       `json:"dls,omitempty"`
}
