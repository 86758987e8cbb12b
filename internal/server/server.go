package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crease/internal/domain"
	"crease/internal/engine"
	"crease/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"batter_selection_required"`
	Message string         `json:"message" example:"batter selection required before next delivery"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the scoring API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Crease API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	hub := newHub()

	registerDocs(router, basePath)
	registerHealth(group)
	registerGames(group, cfg.Engine)
	registerToss(group, cfg.Engine, hub)
	registerInnings(group, cfg.Engine, hub)
	registerDeliveries(group, cfg.Engine, hub)
	registerPlayControl(group, cfg.Engine, hub)
	registerInterruptions(group, cfg.Engine, hub)
	registerDLS(group, cfg.Engine)
	registerReplay(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	router.Get(path.Join(basePath, "games/{game_id}/live"), liveHandler(cfg.Engine, hub))
	router.Handle("/metrics", promhttp.Handler())

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

// handleError maps engine errors onto the envelope. Gate rejections carry the
// context needed to resolve the gate without another round trip.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	commandsRejected.WithLabelValues(rejectionCode(err)).Inc()
	var gerr engine.GateError
	if errors.As(err, &gerr) {
		details := map[string]any{}
		code := "over_start_required"
		if gerr.Gate == domain.GateBatter {
			code = "batter_selection_required"
			if gerr.DismissedID != "" {
				details["dismissed_player_id"] = gerr.DismissedID
			}
			var ids []string
			for _, p := range gerr.Eligible {
				ids = append(ids, p.ID)
			}
			details["eligible_batters"] = ids
		} else if gerr.PrevBowler != "" {
			details["previous_bowler_id"] = gerr.PrevBowler
		}
		return newAPIError(http.StatusConflict, code, err.Error(), details)
	}
	var serr engine.SelectionError
	if errors.As(err, &serr) {
		return newAPIError(http.StatusUnprocessableEntity, serr.Code, err.Error(), map[string]any{"player_id": serr.PlayerID})
	}
	var oerr engine.OverError
	if errors.As(err, &oerr) {
		return newAPIError(http.StatusConflict, oerr.Code, err.Error(), map[string]any{"bowler_id": oerr.BowlerID})
	}
	var terr engine.TerminalStateError
	if errors.As(err, &terr) {
		return newAPIError(http.StatusConflict, "game_not_accepting_commands", err.Error(), map[string]any{"status": terr.Status})
	}
	var verr engine.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func rejectionCode(err error) string {
	var gerr engine.GateError
	if errors.As(err, &gerr) {
		return "gate_" + string(gerr.Gate)
	}
	var serr engine.SelectionError
	if errors.As(err, &serr) {
		return serr.Code
	}
	var oerr engine.OverError
	if errors.As(err, &oerr) {
		return oerr.Code
	}
	var terr engine.TerminalStateError
	if errors.As(err, &terr) {
		return "terminal_state"
	}
	var verr engine.ValidationError
	if errors.As(err, &verr) {
		return "validation_failed"
	}
	if errors.Is(err, repo.ErrNotFound) {
		return "not_found"
	}
	return "internal_error"
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

type GamePath struct {
	GameID   string `path:"game_id"`
	ScorerID string `header:"X-Scorer-Id"`
}

type snapshotBody struct {
	Body domain.Snapshot `json:"body"`
}

func snapshotResponse(snap domain.Snapshot, hub *hub) *snapshotBody {
	hub.broadcast(snap.GameID, snap)
	return &snapshotBody{Body: snap}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGames(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-game",
		Method:        http.MethodPost,
		Path:          "/games",
		Summary:       "Create game",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ScorerID string            `header:"X-Scorer-Id"`
		Body     CreateGameRequest `json:"body"`
	}) (*struct {
		Body domain.Game `json:"body"`
	}, error) {
		g, err := e.CreateGame(ctx, input.Body.options(input.ScorerID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Game `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-games",
		Method:      http.MethodGet,
		Path:        "/games",
		Summary:     "List games",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Games []GameSummary `json:"games"`
		} `json:"body"`
	}, error) {
		games, err := e.Repo.ListGames(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Games []GameSummary `json:"games"`
			} `json:"body"`
		}{}
		out.Body.Games = []GameSummary{}
		for _, g := range games {
			out.Body.Games = append(out.Body.Games, summarize(g))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-game",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}",
		Summary:     "Game details",
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body domain.Game `json:"body"`
	}, error) {
		g, err := e.Repo.GetGame(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Game `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/snapshot",
		Summary:     "Current scorecard snapshot",
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*snapshotBody, error) {
		snap, err := e.Snapshot(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &snapshotBody{Body: snap}, nil
	})
}

func registerToss(api huma.API, e *engine.Engine, h *hub) {
	huma.Register(api, huma.Operation{
		OperationID: "record-toss",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/toss",
		Summary:     "Record the toss",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body TossRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.RecordToss(ctx, input.GameID, input.Body.WinnerTeamID, input.Body.Decision, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})
}

func registerInnings(api huma.API, e *engine.Engine, h *hub) {
	huma.Register(api, huma.Operation{
		OperationID: "start-innings",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/innings",
		Summary:     "Start the next innings",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body StartInningsRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.StartInnings(ctx, input.GameID, input.Body.StrikerID, input.Body.NonStrikerID, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})
}

func registerDeliveries(api huma.API, e *engine.Engine, h *hub) {
	huma.Register(api, huma.Operation{
		OperationID: "apply-delivery",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/deliveries",
		Summary:     "Score one delivery",
		Description: "Validates and applies a single ball. A rejected delivery leaves no trace.",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body engine.DeliveryInput `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.ApplyDelivery(ctx, input.GameID, input.Body, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		deliveriesApplied.WithLabelValues(extraLabel(input.Body.Extra)).Inc()
		if input.Body.Wicket {
			wicketsFallen.Inc()
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "undo-delivery",
		Method:      http.MethodDelete,
		Path:        "/games/{game_id}/deliveries/last",
		Summary:     "Undo the most recent delivery",
	}, func(ctx context.Context, input *GamePath) (*snapshotBody, error) {
		snap, err := e.UndoLastDelivery(ctx, input.GameID, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})
}

func registerPlayControl(api huma.API, e *engine.Engine, h *hub) {
	huma.Register(api, huma.Operation{
		OperationID: "select-batter",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/batter",
		Summary:     "Select the next batter",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body NextBatterRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.SelectNextBatter(ctx, input.GameID, input.Body.PlayerID, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-over",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/over",
		Summary:     "Start a new over",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body StartOverRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.StartOver(ctx, input.GameID, input.Body.BowlerID, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-day",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/day",
		Summary:     "Advance to the next day's play",
	}, func(ctx context.Context, input *GamePath) (*snapshotBody, error) {
		snap, err := e.AdvanceDay(ctx, input.GameID, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-game",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/abandon",
		Summary:     "Abandon the game with no result",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body AbandonRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.AbandonGame(ctx, input.GameID, input.Body.Reason, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})
}

func registerInterruptions(api huma.API, e *engine.Engine, h *hub) {
	huma.Register(api, huma.Operation{
		OperationID: "start-interruption",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/interruptions",
		Summary:     "Record an interruption",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body InterruptionRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.RecordInterruption(ctx, input.GameID, input.Body.Kind, input.Body.Note, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-interruption",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/interruptions/end",
		Summary:     "End the open interruption",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body EndInterruptionRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.EndInterruption(ctx, input.GameID, input.Body.Kind, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reduce-overs",
		Method:      http.MethodPost,
		Path:        "/games/{game_id}/overs",
		Summary:     "Reduce an innings' overs allocation",
	}, func(ctx context.Context, input *struct {
		GamePath
		Body ReduceOversRequest `json:"body"`
	}) (*snapshotBody, error) {
		snap, err := e.ReduceOvers(ctx, input.GameID, input.Body.Innings, input.Body.MaxOvers, input.ScorerID)
		if err != nil {
			return nil, handleError(err)
		}
		return snapshotResponse(snap, h), nil
	})
}

func registerDLS(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "preview-dls",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/dls",
		Summary:     "DLS target and par figures",
		Description: "Read-only; pass innings and max_overs to preview a hypothetical further reduction.",
	}, func(ctx context.Context, input *struct {
		GameID   string `path:"game_id"`
		Kind     string `query:"kind"`
		Innings  int    `query:"innings"`
		MaxOvers int    `query:"max_overs"`
	}) (*struct {
		Body domain.DLSView `json:"body"`
	}, error) {
		var maxOvers *int
		if input.MaxOvers > 0 {
			maxOvers = &input.MaxOvers
		}
		view, err := e.PreviewDLS(ctx, input.GameID, input.Kind, input.Innings, maxOvers)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DLSView `json:"body"`
		}{Body: view}, nil
	})
}

func registerReplay(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "verify-replay",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/replay",
		Summary:     "Audit the cached scorecard against the delivery log",
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body engine.ReplayReport `json:"body"`
	}, error) {
		report, err := e.VerifyReplay(ctx, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReplayReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/games/{game_id}/events",
		Summary:     "Audit event log",
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
		After  int64  `query:"after"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body struct {
			Events []domain.Event `json:"events"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		evts, err := e.Repo.EventsAfter(ctx, limit, input.After, input.GameID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Events []domain.Event `json:"events"`
			} `json:"body"`
		}{}
		out.Body.Events = evts
		return out, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Crease API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
