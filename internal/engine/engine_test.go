package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crease/internal/config"
	"crease/internal/db"
	"crease/internal/domain"
	"crease/internal/engine"
	"crease/internal/migrate"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func side(prefix string, n int) []engine.PlayerInput {
	var out []engine.PlayerInput
	for i := 1; i <= n; i++ {
		out = append(out, engine.PlayerInput{ID: fmt.Sprintf("%s%d", prefix, i), Name: fmt.Sprintf("%s %d", prefix, i)})
	}
	return out
}

// newGame creates a game, wins the toss for the home side batting first, and
// opens the first innings with h1/h2 facing a11.
func newGame(t *testing.T, env testEnv, opts engine.CreateGameOptions) domain.Game {
	t.Helper()
	if opts.Home.Name == "" {
		opts.Home = engine.TeamInput{Name: "Ashton", Players: side("h", 11)}
	}
	if opts.Away.Name == "" {
		opts.Away = engine.TeamInput{Name: "Bexley", Players: side("a", 11)}
	}
	opts.ScorerID = "scorer-1"
	g, err := env.Engine.CreateGame(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := env.Engine.RecordToss(env.Ctx, g.ID, g.HomeTeam.ID, "bat", "scorer-1"); err != nil {
		t.Fatalf("record toss: %v", err)
	}
	if _, err := env.Engine.StartInnings(env.Ctx, g.ID, "h1", "h2", "scorer-1"); err != nil {
		t.Fatalf("start innings: %v", err)
	}
	if _, err := env.Engine.StartOver(env.Ctx, g.ID, "a11", "scorer-1"); err != nil {
		t.Fatalf("start over: %v", err)
	}
	return g
}

func mustBall(t *testing.T, env testEnv, gameID string, in engine.DeliveryInput) domain.Snapshot {
	t.Helper()
	snap, err := env.Engine.ApplyDelivery(env.Ctx, gameID, in, "scorer-1")
	if err != nil {
		t.Fatalf("apply delivery: %v", err)
	}
	return snap
}

func striker(t *testing.T, snap domain.Snapshot, innings int) string {
	t.Helper()
	for _, b := range snap.Innings[innings-1].Batting {
		if b.OnStrike {
			return b.PlayerID
		}
	}
	return ""
}

func TestScoringAndStrikeRotation(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	snap := mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	if got := striker(t, snap, 1); got != "h2" {
		t.Fatalf("single should rotate strike, striker = %s", got)
	}
	snap = mustBall(t, env, g.ID, engine.DeliveryInput{})
	if got := striker(t, snap, 1); got != "h2" {
		t.Fatalf("dot ball must not rotate strike, striker = %s", got)
	}
	snap = mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 4})
	in := snap.Innings[0]
	if in.Runs != 5 || in.Overs != "0.3" {
		t.Fatalf("score = %d runs at %s overs, want 5 at 0.3", in.Runs, in.Overs)
	}
	for _, b := range in.Batting {
		if b.PlayerID == "h2" && (b.Runs != 4 || b.Fours != 1 || b.Balls != 2) {
			t.Fatalf("h2 line = %d(%d) fours=%d", b.Runs, b.Balls, b.Fours)
		}
	}
	if in.Bowling[0].Runs != 5 {
		t.Fatalf("bowler conceded %d, want 5", in.Bowling[0].Runs)
	}
}

func TestExtrasAccounting(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	// Wide with two runs run: three extras, no legal ball, strike rotates on
	// the runs actually run.
	snap := mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraWide, ExtraRuns: 2})
	in := snap.Innings[0]
	if in.Runs != 3 || in.Extras.Wides != 3 || in.Overs != "0.0" {
		t.Fatalf("after wide: %d runs, %d wides, %s overs", in.Runs, in.Extras.Wides, in.Overs)
	}
	if got := striker(t, snap, 1); got != "h1" {
		t.Fatalf("two run wide keeps strike swapped back, striker = %s", got)
	}

	// Byes are legal deliveries and are not charged to the bowler.
	snap = mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraBye, ExtraRuns: 1})
	in = snap.Innings[0]
	if in.Runs != 4 || in.Extras.Byes != 1 || in.Overs != "0.1" {
		t.Fatalf("after bye: %d runs, %d byes, %s overs", in.Runs, in.Extras.Byes, in.Overs)
	}
	if in.Bowling[0].Runs != 3 {
		t.Fatalf("bowler charged %d, want wide runs only (3)", in.Bowling[0].Runs)
	}

	// A bye needs at least one run.
	_, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{Extra: domain.ExtraBye}, "scorer-1")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("zero-run bye accepted: %v", err)
	}
	// The rejected ball left no trace.
	snap, err = env.Engine.Snapshot(env.Ctx, g.ID)
	if err != nil || snap.Innings[0].Runs != 4 {
		t.Fatalf("rejected ball mutated state: %v %d", err, snap.Innings[0].Runs)
	}
}

func TestNoBallFreeHit(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	snap := mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraNoBall, RunsOffBat: 2})
	in := snap.Innings[0]
	if in.Runs != 3 || in.Extras.NoBalls != 1 || in.Overs != "0.0" {
		t.Fatalf("after no-ball: %d runs, %d no-balls, %s overs", in.Runs, in.Extras.NoBalls, in.Overs)
	}
	if !snap.FreeHit {
		t.Fatal("no-ball should arm a free hit")
	}

	// Bowled cannot fall on the free hit delivery.
	_, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{
		Wicket: true, DismissalType: domain.DismissalBowled,
	}, "scorer-1")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("bowled on free hit accepted: %v", err)
	}

	// A wide does not consume the free hit.
	snap = mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraWide})
	if !snap.FreeHit {
		t.Fatal("wide must not clear the free hit")
	}
	// The next legal ball does.
	snap = mustBall(t, env, g.ID, engine.DeliveryInput{})
	if snap.FreeHit {
		t.Fatal("legal ball should clear the free hit")
	}
}

func TestWicketGateAndNextBatter(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	snap := mustBall(t, env, g.ID, engine.DeliveryInput{Wicket: true, DismissalType: domain.DismissalBowled})
	if snap.Gate != domain.GateBatter || !snap.PendingBatter {
		t.Fatalf("gate = %q after wicket", snap.Gate)
	}

	// Scoring is blocked while the gate is open, and the rejection names the
	// eligible replacements.
	_, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{RunsOffBat: 1}, "scorer-1")
	var gerr engine.GateError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected gate error, got %v", err)
	}
	if gerr.Gate != domain.GateBatter || gerr.DismissedID != "h1" {
		t.Fatalf("gate error = %+v", gerr)
	}
	if len(gerr.Eligible) != 9 {
		t.Fatalf("eligible batters = %d, want 9", len(gerr.Eligible))
	}

	// The non-striker is already batting; the dismissed opener is out.
	var serr engine.SelectionError
	_, err = env.Engine.SelectNextBatter(env.Ctx, g.ID, "h2", "scorer-1")
	if !errors.As(err, &serr) || serr.Code != engine.SelectionAlreadyBatting {
		t.Fatalf("selecting h2: %v", err)
	}
	_, err = env.Engine.SelectNextBatter(env.Ctx, g.ID, "h1", "scorer-1")
	if !errors.As(err, &serr) || serr.Code != engine.SelectionAlreadyOut {
		t.Fatalf("selecting h1: %v", err)
	}

	snap, err = env.Engine.SelectNextBatter(env.Ctx, g.ID, "h3", "scorer-1")
	if err != nil {
		t.Fatalf("select h3: %v", err)
	}
	if snap.Gate != domain.GateNone {
		t.Fatalf("gate = %q after selection", snap.Gate)
	}
	// The replacement takes the striker's vacated end.
	if got := striker(t, snap, 1); got != "h3" {
		t.Fatalf("striker = %s, want h3", got)
	}
	// No pending selection to resolve now.
	_, err = env.Engine.SelectNextBatter(env.Ctx, g.ID, "h4", "scorer-1")
	if !errors.As(err, &serr) || serr.Code != engine.SelectionNotPending {
		t.Fatalf("second selection: %v", err)
	}
}

func TestOverGate(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	var snap domain.Snapshot
	for i := 0; i < 6; i++ {
		snap = mustBall(t, env, g.ID, engine.DeliveryInput{})
	}
	if snap.Gate != domain.GateOver || !snap.PendingOver {
		t.Fatalf("gate = %q after six legal balls", snap.Gate)
	}
	if snap.Innings[0].Bowling[0].Maidens != 1 {
		t.Fatalf("maidens = %d, want 1", snap.Innings[0].Bowling[0].Maidens)
	}
	// Strike swapped at the end of the over.
	if got := striker(t, snap, 1); got != "h2" {
		t.Fatalf("striker = %s after over, want h2", got)
	}

	_, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{}, "scorer-1")
	var gerr engine.GateError
	if !errors.As(err, &gerr) || gerr.Gate != domain.GateOver {
		t.Fatalf("expected over gate, got %v", err)
	}

	var oerr engine.OverError
	_, err = env.Engine.StartOver(env.Ctx, g.ID, "a11", "scorer-1")
	if !errors.As(err, &oerr) || oerr.Code != engine.OverSameBowler {
		t.Fatalf("same bowler: %v", err)
	}
	if _, err := env.Engine.StartOver(env.Ctx, g.ID, "a10", "scorer-1"); err != nil {
		t.Fatalf("start over: %v", err)
	}
	_, err = env.Engine.StartOver(env.Ctx, g.ID, "a9", "scorer-1")
	if !errors.As(err, &oerr) || oerr.Code != engine.OverInProgress {
		t.Fatalf("over already started: %v", err)
	}
	// The previous bowler may return after one over between.
	mustBall(t, env, g.ID, engine.DeliveryInput{})
	for i := 0; i < 5; i++ {
		mustBall(t, env, g.ID, engine.DeliveryInput{})
	}
	if _, err := env.Engine.StartOver(env.Ctx, g.ID, "a11", "scorer-1"); err != nil {
		t.Fatalf("a11 returning: %v", err)
	}
}

func TestWicketOnFinalBallOpensBothGates(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	for i := 0; i < 5; i++ {
		mustBall(t, env, g.ID, engine.DeliveryInput{})
	}
	snap := mustBall(t, env, g.ID, engine.DeliveryInput{Wicket: true, DismissalType: domain.DismissalCaught, FielderID: "a5"})
	if !snap.PendingBatter || !snap.PendingOver {
		t.Fatalf("pending batter=%t over=%t, want both", snap.PendingBatter, snap.PendingOver)
	}
	// The batter gate resolves first.
	if snap.Gate != domain.GateBatter {
		t.Fatalf("gate = %q, want batter", snap.Gate)
	}
	snap, err := env.Engine.SelectNextBatter(env.Ctx, g.ID, "h3", "scorer-1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if snap.Gate != domain.GateOver {
		t.Fatalf("gate = %q after selection, want over", snap.Gate)
	}
	if _, err := env.Engine.StartOver(env.Ctx, g.ID, "a10", "scorer-1"); err != nil {
		t.Fatalf("start over: %v", err)
	}
}

// bowlWicket records a bowled dismissal, resolving gates as they open.
func bowlWicket(t *testing.T, env testEnv, g domain.Game, next string, bowlers *int) domain.Snapshot {
	t.Helper()
	snap, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{
		Wicket: true, DismissalType: domain.DismissalBowled,
	}, "scorer-1")
	if err != nil {
		t.Fatalf("wicket ball: %v", err)
	}
	if snap.PendingBatter && next != "" {
		if snap, err = env.Engine.SelectNextBatter(env.Ctx, g.ID, next, "scorer-1"); err != nil {
			t.Fatalf("select %s: %v", next, err)
		}
	}
	if snap.PendingOver && snap.Status == domain.GameInProgress {
		*bowlers++
		bowler := fmt.Sprintf("a%d", 11-*bowlers%2)
		if snap, err = env.Engine.StartOver(env.Ctx, g.ID, bowler, "scorer-1"); err != nil {
			t.Fatalf("start over: %v", err)
		}
	}
	return snap
}

func TestAllOutClosesInnings(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	bowlers := 0
	var snap domain.Snapshot
	for w := 1; w <= 10; w++ {
		next := fmt.Sprintf("h%d", w+2)
		if w == 10 {
			next = ""
		}
		snap = bowlWicket(t, env, g, next, &bowlers)
	}
	if snap.Innings[0].Wickets != 10 || snap.Innings[0].Status != domain.InningsCompleted {
		t.Fatalf("innings = %d wickets, status %s", snap.Innings[0].Wickets, snap.Innings[0].Status)
	}
	if snap.Status != domain.GameInningsBreak {
		t.Fatalf("game status = %s, want innings_break", snap.Status)
	}
	if len(snap.Innings[0].FallOfWickets) != 10 {
		t.Fatalf("fall of wickets = %d entries", len(snap.Innings[0].FallOfWickets))
	}
	// No more deliveries in a closed innings.
	_, err := env.Engine.ApplyDelivery(env.Ctx, g.ID, engine.DeliveryInput{}, "scorer-1")
	var terr engine.TerminalStateError
	if !errors.As(err, &terr) {
		t.Fatalf("delivery after close: %v", err)
	}
}

// oneOverGame finishes a 1-over first innings with six singles (6 runs) and
// opens the chase.
func oneOverGame(t *testing.T, env testEnv) domain.Game {
	t.Helper()
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatCustom, MaxOvers: 1})
	var snap domain.Snapshot
	for i := 0; i < 6; i++ {
		snap = mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	}
	if snap.Status != domain.GameInningsBreak {
		t.Fatalf("after one over: status %s", snap.Status)
	}
	if _, err := env.Engine.StartInnings(env.Ctx, g.ID, "a1", "a2", "scorer-1"); err != nil {
		t.Fatalf("start chase: %v", err)
	}
	snap, err := env.Engine.StartOver(env.Ctx, g.ID, "h11", "scorer-1")
	if err != nil {
		t.Fatalf("start over: %v", err)
	}
	if tgt := snap.Innings[1].Target; tgt == nil || *tgt != 7 {
		t.Fatalf("target = %v, want 7", tgt)
	}
	return g
}

func TestChaseWonByWickets(t *testing.T) {
	env := newTestEnv(t)
	g := oneOverGame(t, env)
	mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 4})
	snap := mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 4})
	if snap.Status != domain.GameCompleted {
		t.Fatalf("status = %s after passing target", snap.Status)
	}
	if snap.Result != "Bexley won by 10 wicket(s)" {
		t.Fatalf("result = %q", snap.Result)
	}
}

func TestChaseTied(t *testing.T) {
	env := newTestEnv(t)
	g := oneOverGame(t, env)
	var snap domain.Snapshot
	for i := 0; i < 6; i++ {
		snap = mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	}
	if snap.Status != domain.GameCompleted || snap.Result != "match tied" {
		t.Fatalf("status=%s result=%q", snap.Status, snap.Result)
	}
}

func TestChaseFallsShort(t *testing.T) {
	env := newTestEnv(t)
	g := oneOverGame(t, env)
	var snap domain.Snapshot
	for i := 0; i < 6; i++ {
		snap = mustBall(t, env, g.ID, engine.DeliveryInput{})
	}
	if snap.Result != "Ashton won by 6 run(s)" {
		t.Fatalf("result = %q", snap.Result)
	}
}

func TestUndoRestoresPriorState(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	before, err := env.Engine.Snapshot(env.Ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	// A wicket, its replacement, then undo: the wicket ball and the
	// selection both unwind.
	mustBall(t, env, g.ID, engine.DeliveryInput{Wicket: true, DismissalType: domain.DismissalBowled})
	if _, err := env.Engine.SelectNextBatter(env.Ctx, g.ID, "h3", "scorer-1"); err != nil {
		t.Fatal(err)
	}
	after, err := env.Engine.UndoLastDelivery(env.Ctx, g.ID, "scorer-1")
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if after.Innings[0].Wickets != 0 || after.Innings[0].Runs != before.Innings[0].Runs {
		t.Fatalf("after undo: %d/%d", after.Innings[0].Runs, after.Innings[0].Wickets)
	}
	if len(after.Innings[0].Batting) != 2 {
		t.Fatalf("batting card has %d entries after undo, want the two openers", len(after.Innings[0].Batting))
	}
	if got := striker(t, after, 1); got != striker(t, before, 1) {
		t.Fatalf("striker = %s after undo, want %s", got, striker(t, before, 1))
	}
	// Undo keeps working back through the log, then runs dry.
	if _, err := env.Engine.UndoLastDelivery(env.Ctx, g.ID, "scorer-1"); err != nil {
		t.Fatalf("second undo: %v", err)
	}
	_, err = env.Engine.UndoLastDelivery(env.Ctx, g.ID, "scorer-1")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("undo on empty log: %v", err)
	}
}

func TestVerifyReplayMatchesProjection(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})

	mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 2})
	mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraNoBall, RunsOffBat: 4})
	mustBall(t, env, g.ID, engine.DeliveryInput{Extra: domain.ExtraLegBye, ExtraRuns: 1})
	mustBall(t, env, g.ID, engine.DeliveryInput{Wicket: true, DismissalType: domain.DismissalRunOut, DismissedID: "h1"})
	if _, err := env.Engine.SelectNextBatter(env.Ctx, g.ID, "h3", "scorer-1"); err != nil {
		t.Fatal(err)
	}
	mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})

	report, err := env.Engine.VerifyReplay(env.Ctx, g.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.OK {
		t.Fatalf("replay mismatch: %v", report.Differences)
	}
}

func TestInterruptionWindows(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatODI})

	snap, err := env.Engine.RecordInterruption(env.Ctx, g.ID, domain.InterruptionWeather, "rain", "scorer-1")
	if err != nil {
		t.Fatalf("record interruption: %v", err)
	}
	if len(snap.Interruptions) != 1 || snap.Interruptions[0].EndedAt != "" {
		t.Fatalf("interruptions = %+v", snap.Interruptions)
	}
	snap, err = env.Engine.EndInterruption(env.Ctx, g.ID, "", "scorer-1")
	if err != nil {
		t.Fatalf("end interruption: %v", err)
	}
	if snap.Interruptions[0].EndedAt == "" {
		t.Fatal("interruption still open")
	}
	_, err = env.Engine.EndInterruption(env.Ctx, g.ID, "", "scorer-1")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ending with none open: %v", err)
	}
}

func TestReduceOversRevisesTarget(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatODI})

	// One over bowled, then rain ends the first innings at its reduced
	// allocation.
	for i := 0; i < 6; i++ {
		mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	}
	snap, err := env.Engine.ReduceOvers(env.Ctx, g.ID, 1, 1, "scorer-1")
	if err != nil {
		t.Fatalf("reduce innings 1: %v", err)
	}
	if snap.Innings[0].Status != domain.InningsCompleted || snap.Status != domain.GameInningsBreak {
		t.Fatalf("after reduction: innings %s, game %s", snap.Innings[0].Status, snap.Status)
	}

	// The chase keeps its full 50 overs, so it has at least the first side's
	// resources and the target stays at S1+1.
	if _, err := env.Engine.StartInnings(env.Ctx, g.ID, "a1", "a2", "scorer-1"); err != nil {
		t.Fatal(err)
	}
	snap, err = env.Engine.StartOver(env.Ctx, g.ID, "h11", "scorer-1")
	if err != nil {
		t.Fatal(err)
	}
	if tgt := snap.Innings[1].Target; tgt == nil || *tgt != 7 {
		t.Fatalf("chase target = %v, want 7", tgt)
	}

	// Cutting the chase must agree with the preview for the same reduction.
	two := 2
	preview, err := env.Engine.PreviewDLS(env.Ctx, g.ID, domain.InterruptionWeather, 2, &two)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	snap, err = env.Engine.ReduceOvers(env.Ctx, g.ID, 2, 2, "scorer-1")
	if err != nil {
		t.Fatalf("reduce innings 2: %v", err)
	}
	if tgt := snap.Innings[1].Target; tgt == nil || *tgt != preview.Target {
		t.Fatalf("revised target = %v, preview said %d", snap.Innings[1].Target, preview.Target)
	}
	if snap.DLS == nil {
		t.Fatal("snapshot should carry DLS figures")
	}
}

func TestPreviewDLSLeavesStateAlone(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatODI})
	for i := 0; i < 6; i++ {
		mustBall(t, env, g.ID, engine.DeliveryInput{RunsOffBat: 1})
	}
	before, err := env.Engine.Snapshot(env.Ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	forty := 40
	p1, err := env.Engine.PreviewDLS(env.Ctx, g.ID, domain.InterruptionWeather, 1, &forty)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	p2, err := env.Engine.PreviewDLS(env.Ctx, g.ID, domain.InterruptionWeather, 1, &forty)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatalf("preview not idempotent: %+v vs %+v", p1, p2)
	}
	after, err := env.Engine.Snapshot(env.Ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if before.Innings[0].Runs != after.Innings[0].Runs || before.Innings[0].MaxOvers != after.Innings[0].MaxOvers {
		t.Fatal("preview mutated game state")
	}
}

func TestDailyOversAllocation(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatCustom, Days: 2, OversPer: 1})

	for i := 0; i < 6; i++ {
		mustBall(t, env, g.ID, engine.DeliveryInput{})
	}
	_, err := env.Engine.StartOver(env.Ctx, g.ID, "a10", "scorer-1")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("over after daily allocation: %v", err)
	}
	if _, err := env.Engine.AdvanceDay(env.Ctx, g.ID, "scorer-1"); err != nil {
		t.Fatalf("advance day: %v", err)
	}
	if _, err := env.Engine.StartOver(env.Ctx, g.ID, "a10", "scorer-1"); err != nil {
		t.Fatalf("over on new day: %v", err)
	}
}

func TestAbandonGame(t *testing.T) {
	env := newTestEnv(t)
	g := newGame(t, env, engine.CreateGameOptions{Format: domain.FormatT20})
	snap, err := env.Engine.AbandonGame(env.Ctx, g.ID, "ground flooded", "scorer-1")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if snap.Status != domain.GameCompleted || snap.Result != "no result (ground flooded)" {
		t.Fatalf("status=%s result=%q", snap.Status, snap.Result)
	}
}
