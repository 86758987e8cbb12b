package creasesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Crease HTTP API client.
type Client struct {
	BaseURL    string
	ScorerID   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, scorerID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		ScorerID: scorerID,
		Timeout:  10 * time.Second,
	}
}

// Player identifies one member of a squad.
type Player struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Team is a named squad.
type Team struct {
	Name    string   `json:"name"`
	Players []Player `json:"players"`
}

// Game is the API game model (partial).
type Game struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	HomeTeam struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Players []Player `json:"players,omitempty"`
	} `json:"home_team"`
	AwayTeam struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Players []Player `json:"players,omitempty"`
	} `json:"away_team"`
	Settings struct {
		Format     string  `json:"format"`
		MaxOvers   int     `json:"max_overs,omitempty"`
		DLSEnabled bool    `json:"dls_enabled"`
		FreeHit    bool    `json:"free_hit"`
		G50        float64 `json:"g50"`
	} `json:"settings"`
	CreatedAt string `json:"created_at"`
}

// NewGame describes a game to create.
type NewGame struct {
	ID          string   `json:"id,omitempty"`
	Format      string   `json:"format,omitempty"`
	MaxOvers    int      `json:"max_overs,omitempty"`
	Days        int      `json:"days,omitempty"`
	OversPerDay int      `json:"overs_per_day,omitempty"`
	DLS         *bool    `json:"dls_enabled,omitempty"`
	FreeHit     *bool    `json:"free_hit,omitempty"`
	G50         *float64 `json:"g50,omitempty"`
	Home        Team     `json:"home"`
	Away        Team     `json:"away"`
}

// Delivery describes one ball to score.
type Delivery struct {
	RunsOffBat    int    `json:"runs_off_bat"`
	Extra         string `json:"extra,omitempty"`
	ExtraRuns     int    `json:"extra_runs,omitempty"`
	PenaltyRuns   int    `json:"penalty_runs,omitempty"`
	Wicket        bool   `json:"is_wicket,omitempty"`
	DismissalType string `json:"dismissal_type,omitempty"`
	DismissedID   string `json:"dismissed_player_id,omitempty"`
	FielderID     string `json:"fielder_id,omitempty"`
}

// GameSummary is a listing row.
type GameSummary struct {
	ID       string `json:"id"`
	Format   string `json:"format"`
	Home     string `json:"home"`
	Away     string `json:"away"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	MaxOvers int    `json:"max_overs,omitempty"`
}

// BatterLine is a batting row in a snapshot (partial).
type BatterLine struct {
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

// BowlerLine is a bowling row in a snapshot (partial).
type BowlerLine struct {
	PlayerID string  `json:"player_id"`
	Name     string  `json:"name"`
	Overs    string  `json:"overs"`
	Runs     int     `json:"runs"`
	Wickets  int     `json:"wickets"`
	Maidens  int     `json:"maidens"`
	Economy  float64 `json:"economy"`
}

// Innings is a snapshot innings block (partial).
type Innings struct {
	Number      int          `json:"number"`
	BattingTeam string       `json:"batting_team"`
	Runs        int          `json:"runs"`
	Wickets     int          `json:"wickets"`
	Overs       string       `json:"overs"`
	RunRate     float64      `json:"run_rate"`
	Target      *int         `json:"target,omitempty"`
	MaxOvers    int          `json:"max_overs"`
	Batting     []BatterLine `json:"batting"`
	Bowling     []BowlerLine `json:"bowling"`
	Status      string       `json:"status"`
}

// DLS carries rain-adjustment figures.
type DLS struct {
	G50     float64 `json:"g50"`
	R1      float64 `json:"r1"`
	R2      float64 `json:"r2"`
	Target  int     `json:"target"`
	Par     float64 `json:"par"`
	AheadBy *int    `json:"ahead_by,omitempty"`
	Applies bool    `json:"applies"`
}

// Snapshot is the full derived game state.
type Snapshot struct {
	GameID         string    `json:"game_id"`
	Status         string    `json:"status"`
	Result         string    `json:"result,omitempty"`
	CurrentInnings int       `json:"current_innings"`
	Gate           string    `json:"gate"`
	PendingBatter  bool      `json:"pending_batter"`
	PendingOver    bool      `json:"pending_over"`
	FreeHit        bool      `json:"free_hit_pending,omitempty"`
	Eligible       []Player  `json:"eligible_batters,omitempty"`
	Innings        []Innings `json:"innings"`
	DLS            *DLS      `json:"dls,omitempty"`
}

// Event is an audit log entry.
type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	GameID   string `json:"game_id,omitempty"`
	ScorerID string `json:"scorer_id"`
	Payload  string `json:"payload_json"`
}

// ReplayReport is the result of a scorecard audit.
type ReplayReport struct {
	GameID      string   `json:"game_id"`
	OK          bool     `json:"ok"`
	Differences []string `json:"differences,omitempty"`
}

// APIError wraps non-2xx responses, carrying the decoded error envelope
// when the body has one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateGame registers a new game.
func (c *Client) CreateGame(ctx context.Context, g NewGame) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodPost, "games", g, &resp)
	return resp, err
}

// GetGame fetches a game by id.
func (c *Client) GetGame(ctx context.Context, gameID string) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodGet, "games/"+url.PathEscape(gameID), nil, &resp)
	return resp, err
}

// ListGames returns all games.
func (c *Client) ListGames(ctx context.Context) ([]GameSummary, error) {
	var resp struct {
		Games []GameSummary `json:"games"`
	}
	err := c.do(ctx, http.MethodGet, "games", nil, &resp)
	return resp.Games, err
}

// Snapshot returns the current derived state of a game.
func (c *Client) Snapshot(ctx context.Context, gameID string) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodGet, c.gamePath(gameID, "snapshot"), nil, &resp)
	return resp, err
}

// RecordToss records the toss outcome.
func (c *Client) RecordToss(ctx context.Context, gameID, winnerTeamID, decision string) (Snapshot, error) {
	body := map[string]any{
		"winner_team_id": winnerTeamID,
		"decision":       decision,
	}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "toss"), body, &resp)
	return resp, err
}

// StartInnings opens the next innings with the two openers.
func (c *Client) StartInnings(ctx context.Context, gameID, strikerID, nonStrikerID string) (Snapshot, error) {
	body := map[string]any{
		"striker_id":     strikerID,
		"non_striker_id": nonStrikerID,
	}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "innings"), body, &resp)
	return resp, err
}

// ApplyDelivery scores one ball.
func (c *Client) ApplyDelivery(ctx context.Context, gameID string, d Delivery) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "deliveries"), d, &resp)
	return resp, err
}

// UndoLastDelivery removes the most recent ball and rewinds the scorecard.
func (c *Client) UndoLastDelivery(ctx context.Context, gameID string) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodDelete, c.gamePath(gameID, "deliveries/last"), nil, &resp)
	return resp, err
}

// SelectNextBatter resolves a fall-of-wicket pause.
func (c *Client) SelectNextBatter(ctx context.Context, gameID, playerID string) (Snapshot, error) {
	body := map[string]any{"player_id": playerID}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "batter"), body, &resp)
	return resp, err
}

// StartOver resolves an over-boundary pause with the next bowler.
func (c *Client) StartOver(ctx context.Context, gameID, bowlerID string) (Snapshot, error) {
	body := map[string]any{"bowler_id": bowlerID}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "over"), body, &resp)
	return resp, err
}

// AdvanceDay moves a multi-day game to the next day's play.
func (c *Client) AdvanceDay(ctx context.Context, gameID string) (Snapshot, error) {
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "day"), struct{}{}, &resp)
	return resp, err
}

// RecordInterruption opens an interruption window.
func (c *Client) RecordInterruption(ctx context.Context, gameID, kind, note string) (Snapshot, error) {
	body := map[string]any{"kind": kind, "note": note}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "interruptions"), body, &resp)
	return resp, err
}

// EndInterruption closes the open interruption window.
func (c *Client) EndInterruption(ctx context.Context, gameID, kind string) (Snapshot, error) {
	body := map[string]any{"kind": kind}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "interruptions/end"), body, &resp)
	return resp, err
}

// ReduceOvers shortens an innings' overs allocation.
func (c *Client) ReduceOvers(ctx context.Context, gameID string, innings, maxOvers int) (Snapshot, error) {
	body := map[string]any{"innings": innings, "max_overs": maxOvers}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "overs"), body, &resp)
	return resp, err
}

// AbandonGame calls the game off with no result.
func (c *Client) AbandonGame(ctx context.Context, gameID, reason string) (Snapshot, error) {
	body := map[string]any{"reason": reason}
	var resp Snapshot
	err := c.do(ctx, http.MethodPost, c.gamePath(gameID, "abandon"), body, &resp)
	return resp, err
}

// PreviewDLS returns the rain-adjustment figures, optionally for a
// hypothetical reduction of an innings to maxOvers.
func (c *Client) PreviewDLS(ctx context.Context, gameID, kind string, innings, maxOvers int) (DLS, error) {
	endpoint := c.gamePath(gameID, "dls")
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	if innings > 0 {
		q.Set("innings", fmt.Sprint(innings))
	}
	if maxOvers > 0 {
		q.Set("max_overs", fmt.Sprint(maxOvers))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp DLS
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// VerifyReplay audits the cached scorecard against the delivery log.
func (c *Client) VerifyReplay(ctx context.Context, gameID string) (ReplayReport, error) {
	var resp ReplayReport
	err := c.do(ctx, http.MethodGet, c.gamePath(gameID, "replay"), nil, &resp)
	return resp, err
}

// Events returns the game's audit trail after the given cursor.
func (c *Client) Events(ctx context.Context, gameID string, after int64, limit int) ([]Event, error) {
	endpoint := c.gamePath(gameID, "events")
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ScorerID != "" {
		req.Header.Set("X-Scorer-Id", c.ScorerID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) gamePath(gameID, p string) string {
	return fmt.Sprintf("games/%s/%s", url.PathEscape(gameID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
