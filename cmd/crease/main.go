package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crease/internal/config"
	"crease/internal/db"
	"crease/internal/domain"
	"crease/internal/engine"
	"crease/internal/migrate"
	"crease/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "crease",
	Short: "Crease CLI",
	Long: `Crease scores cricket matches ball by ball.
The delivery log is the source of truth: every ball is validated, applied
atomically, and can be undone or replayed. Rain-shortened limited-overs
games get Duckworth-Lewis-Stern revised targets.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("scorer-id", "local-scorer", "scorer identifier stamped on events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("scorer-id", rootCmd.PersistentFlags().Lookup("scorer-id"))
}

func registerCommands() {
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(inningsCmd())
	rootCmd.AddCommand(ballCmd())
	rootCmd.AddCommand(batterCmd())
	rootCmd.AddCommand(overCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(interruptionCmd())
	rootCmd.AddCommand(oversCmd())
	rootCmd.AddCommand(scorecardCmd())
	rootCmd.AddCommand(dlsCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func scorerID() string { return viper.GetString("scorer-id") }

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e, err := engine.New(conn, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, e)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printJSONOrTable(v any) error {
	// Tables are rendered by the commands that have a tabular shape; the
	// rest fall back to indented JSON either way.
	return printJSON(v)
}

// parsePlayers turns repeatable --home-player/--away-player values into
// inputs. Each value is "name" or "id:name".
func parsePlayers(values []string) []engine.PlayerInput {
	var out []engine.PlayerInput
	for _, v := range values {
		if id, name, ok := strings.Cut(v, ":"); ok {
			out = append(out, engine.PlayerInput{ID: id, Name: name})
			continue
		}
		out = append(out, engine.PlayerInput{Name: v})
	}
	return out
}

func gameCmd() *cobra.Command {
	g := &cobra.Command{Use: "game", Short: "Manage games"}
	g.AddCommand(gameCreateCmd())
	g.AddCommand(gameListCmd())
	g.AddCommand(gameShowCmd())
	g.AddCommand(gameTossCmd())
	g.AddCommand(gameAbandonCmd())
	return g
}

func gameCreateCmd() *cobra.Command {
	var (
		id, format             string
		maxOvers, days, perDay int
		home, away             string
		homePlayers            []string
		awayPlayers            []string
		g50                    float64
		dlsFlag, freeHitFlag   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.CreateGameOptions{
					ID:       id,
					Format:   format,
					MaxOvers: maxOvers,
					Days:     days,
					OversPer: perDay,
					Home:     engine.TeamInput{Name: home, Players: parsePlayers(homePlayers)},
					Away:     engine.TeamInput{Name: away, Players: parsePlayers(awayPlayers)},
					ScorerID: scorerID(),
				}
				if v, err := parseBoolFlag(dlsFlag); err != nil {
					return fmt.Errorf("--dls: %w", err)
				} else if v != nil {
					opts.DLS = v
				}
				if v, err := parseBoolFlag(freeHitFlag); err != nil {
					return fmt.Errorf("--free-hit: %w", err)
				} else if v != nil {
					opts.FreeHit = v
				}
				if cmd.Flags().Changed("g50") {
					opts.G50 = &g50
				}
				game, err := e.CreateGame(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(game)
				}
				fmt.Printf("created game %s: %s v %s (%s)\n", game.ID, game.HomeTeam.Name, game.AwayTeam.Name, game.Settings.Format)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "game id (generated when empty)")
	cmd.Flags().StringVar(&format, "format", "", "t20, odi, first_class or custom")
	cmd.Flags().IntVar(&maxOvers, "max-overs", 0, "overs per innings (custom format)")
	cmd.Flags().IntVar(&days, "days", 0, "scheduled days (multi-day format)")
	cmd.Flags().IntVar(&perDay, "overs-per-day", 0, "daily overs allocation")
	cmd.Flags().StringVar(&home, "home", "", "home team name")
	cmd.Flags().StringVar(&away, "away", "", "away team name")
	cmd.Flags().StringArrayVar(&homePlayers, "home-player", nil, "home player, name or id:name (repeatable)")
	cmd.Flags().StringArrayVar(&awayPlayers, "away-player", nil, "away player, name or id:name (repeatable)")
	cmd.Flags().StringVar(&dlsFlag, "dls", "", "override DLS (true/false)")
	cmd.Flags().StringVar(&freeHitFlag, "free-hit", "", "override free hit rule (true/false)")
	cmd.Flags().Float64Var(&g50, "g50", 0, "G50 parameter for Standard Edition DLS")
	_ = cmd.MarkFlagRequired("home")
	_ = cmd.MarkFlagRequired("away")
	return cmd
}

func parseBoolFlag(v string) (*bool, error) {
	switch v {
	case "":
		return nil, nil
	case "true", "yes", "on":
		b := true
		return &b, nil
	case "false", "no", "off":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("want true or false, got %q", v)
	}
}

func gameListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				games, err := e.Repo.ListGames(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(games)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Format", "Home", "Away", "Status", "Result"})
				for _, g := range games {
					tw.AppendRow(table.Row{g.ID, g.Settings.Format, g.HomeTeam.Name, g.AwayTeam.Name, g.Status, g.Result})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func gameShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <game-id>",
		Short: "Game details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				g, err := e.Repo.GetGame(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(g)
			})
		},
	}
}

func gameTossCmd() *cobra.Command {
	var winner, decision string
	cmd := &cobra.Command{
		Use:   "toss <game-id>",
		Short: "Record the toss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.RecordToss(ctx, args[0], winner, decision, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "toss winning team id")
	cmd.Flags().StringVar(&decision, "decision", "bat", "bat or bowl")
	_ = cmd.MarkFlagRequired("winner")
	return cmd
}

func gameAbandonCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon <game-id>",
		Short: "Abandon the game with no result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.AbandonGame(ctx, args[0], reason, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the game was called off")
	return cmd
}

func inningsCmd() *cobra.Command {
	in := &cobra.Command{Use: "innings", Short: "Innings control"}
	var strikerF, nonStrikerF string
	start := &cobra.Command{
		Use:   "start <game-id>",
		Short: "Start the next innings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.StartInnings(ctx, args[0], strikerF, nonStrikerF, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	start.Flags().StringVar(&strikerF, "striker", "", "opening striker player id")
	start.Flags().StringVar(&nonStrikerF, "non-striker", "", "opening non-striker player id")
	_ = start.MarkFlagRequired("striker")
	_ = start.MarkFlagRequired("non-striker")
	in.AddCommand(start)
	return in
}

func ballCmd() *cobra.Command {
	var input engine.DeliveryInput
	cmd := &cobra.Command{
		Use:   "ball <game-id>",
		Short: "Score one delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.ApplyDelivery(ctx, args[0], input, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	cmd.Flags().IntVar(&input.RunsOffBat, "runs", 0, "runs off the bat")
	cmd.Flags().StringVar(&input.Extra, "extra", "", "wide, no_ball, bye or leg_bye")
	cmd.Flags().IntVar(&input.ExtraRuns, "extra-runs", 0, "runs run on a wide/bye/leg-bye")
	cmd.Flags().IntVar(&input.PenaltyRuns, "penalty", 0, "penalty runs awarded")
	cmd.Flags().BoolVar(&input.Wicket, "wicket", false, "a wicket fell")
	cmd.Flags().StringVar(&input.DismissalType, "dismissal", "", "dismissal type")
	cmd.Flags().StringVar(&input.DismissedID, "dismissed", "", "dismissed player id (defaults to striker)")
	cmd.Flags().StringVar(&input.FielderID, "fielder", "", "fielder player id")

	undo := &cobra.Command{
		Use:   "undo <game-id>",
		Short: "Undo the most recent delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.UndoLastDelivery(ctx, args[0], scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	cmd.AddCommand(undo)
	return cmd
}

func batterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batter <game-id> <player-id>",
		Short: "Select the next batter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.SelectNextBatter(ctx, args[0], args[1], scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
}

func overCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "over <game-id> <bowler-id>",
		Short: "Start a new over",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.StartOver(ctx, args[0], args[1], scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
}

func dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day <game-id>",
		Short: "Advance to the next day's play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.AdvanceDay(ctx, args[0], scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
}

func interruptionCmd() *cobra.Command {
	in := &cobra.Command{Use: "interruption", Short: "Interruption windows"}
	var kind, note string
	start := &cobra.Command{
		Use:   "start <game-id>",
		Short: "Record an interruption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.RecordInterruption(ctx, args[0], kind, note, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	start.Flags().StringVar(&kind, "kind", domain.InterruptionWeather, "weather, injury, light or other")
	start.Flags().StringVar(&note, "note", "", "free-form note")

	var endKind string
	end := &cobra.Command{
		Use:   "end <game-id>",
		Short: "End the open interruption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.EndInterruption(ctx, args[0], endKind, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	end.Flags().StringVar(&endKind, "kind", "", "match a specific kind")
	in.AddCommand(start)
	in.AddCommand(end)
	return in
}

func oversCmd() *cobra.Command {
	o := &cobra.Command{Use: "overs", Short: "Overs allocation"}
	var innings, maxOvers int
	reduce := &cobra.Command{
		Use:   "reduce <game-id>",
		Short: "Reduce an innings' overs allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.ReduceOvers(ctx, args[0], innings, maxOvers, scorerID())
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
	reduce.Flags().IntVar(&innings, "innings", 0, "innings number (1 or 2)")
	reduce.Flags().IntVar(&maxOvers, "max-overs", 0, "new overs limit")
	_ = reduce.MarkFlagRequired("innings")
	_ = reduce.MarkFlagRequired("max-overs")
	o.AddCommand(reduce)
	return o
}

func scorecardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scorecard <game-id>",
		Short: "Full scorecard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				snap, err := e.Snapshot(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				renderScorecard(snap)
				return nil
			})
		},
	}
}

func renderScorecard(snap domain.Snapshot) {
	for _, in := range snap.Innings {
		fmt.Printf("\nInnings %d: %s %d/%d (%s ov", in.Number, in.BattingTeam, in.Runs, in.Wickets, in.Overs)
		if in.MaxOvers > 0 {
			fmt.Printf(" of %d", in.MaxOvers)
		}
		fmt.Print(")")
		if in.Target != nil {
			fmt.Printf("  target %d", *in.Target)
		}
		fmt.Println()

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Batter", "", "R", "B", "4s", "6s", "SR"})
		for _, b := range in.Batting {
			status := b.Dismissal
			if !b.Out {
				status = "not out"
				if b.OnStrike {
					status = "not out *"
				}
			}
			tw.AppendRow(table.Row{b.Name, status, b.Runs, b.Balls, b.Fours, b.Sixes, fmt.Sprintf("%.2f", b.StrikeRate)})
		}
		tw.AppendFooter(table.Row{"Extras", "", in.Extras.Total(), "", "", "", ""})
		tw.Render()

		bw := table.NewWriter()
		bw.SetOutputMirror(os.Stdout)
		bw.AppendHeader(table.Row{"Bowler", "O", "M", "R", "W", "Econ"})
		for _, b := range in.Bowling {
			bw.AppendRow(table.Row{b.Name, b.Overs, b.Maidens, b.Runs, b.Wickets, fmt.Sprintf("%.2f", b.Economy)})
		}
		bw.Render()

		if len(in.FallOfWickets) > 0 {
			var parts []string
			for _, f := range in.FallOfWickets {
				parts = append(parts, fmt.Sprintf("%d-%d (%d.%d)", f.Wicket, f.Score, f.Over, f.Ball))
			}
			fmt.Println("Fall:", strings.Join(parts, ", "))
		}
	}
	if snap.DLS != nil && snap.DLS.Applies {
		fmt.Printf("\nDLS: target %d, par %.2f\n", snap.DLS.Target, snap.DLS.Par)
	}
	if snap.Result != "" {
		fmt.Println("\nResult:", snap.Result)
	} else if snap.Gate != domain.GateNone {
		fmt.Printf("\nWaiting on: %s\n", snap.Gate)
	}
}

func printSnapshot(snap domain.Snapshot) error {
	if viper.GetBool("json") {
		return printJSON(snap)
	}
	renderScorecard(snap)
	return nil
}

func dlsCmd() *cobra.Command {
	var kind string
	var innings, maxOvers int
	cmd := &cobra.Command{
		Use:   "dls <game-id>",
		Short: "DLS target and par figures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var mo *int
				if maxOvers > 0 {
					mo = &maxOvers
				}
				view, err := e.PreviewDLS(ctx, args[0], kind, innings, mo)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("R1 %.4f  R2 %.4f (used %.4f)\n", view.R1, view.R2, view.R2Used)
				fmt.Printf("target %d  par %.2f", view.Target, view.Par)
				if view.AheadBy != nil {
					fmt.Printf("  ahead by %+d", *view.AheadBy)
				}
				fmt.Println()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "interruption kind for the preview")
	cmd.Flags().IntVar(&innings, "innings", 0, "innings a hypothetical reduction applies to")
	cmd.Flags().IntVar(&maxOvers, "max-overs", 0, "hypothetical new overs limit")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <game-id>",
		Short: "Audit the scorecard against the delivery log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				report, err := e.VerifyReplay(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				if report.OK {
					fmt.Println("ok: projection matches the delivery log")
					return nil
				}
				for _, d := range report.Differences {
					fmt.Println("mismatch:", d)
				}
				return fmt.Errorf("%d difference(s)", len(report.Differences))
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit event log"}
	var n int
	var gameID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.EventsAfter(ctx, n, 0, gameID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&gameID, "game", "", "filter by game id")
	l.AddCommand(tail)
	return l
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			e, err := engine.New(conn, cfg)
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crease API on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}
