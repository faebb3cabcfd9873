package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retentionline/internal/domain"
	"retentionline/internal/engine"
	"retentionline/internal/repo"
	"retentionline/internal/stats"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid alert transition retained -> churned"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the retention API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors are reported as 400.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Retentionline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", promhttp.Handler())
	registerHealth(group)
	registerMe(group)
	registerAlerts(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerBoard(group, cfg.Engine)
	registerStatistics(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"fields": ve.Fields})
	}
	var nf *engine.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"kind": nf.Kind, "id": nf.ID})
	}
	var it *engine.InvalidTypeError
	if errors.As(err, &it) {
		return newAPIError(http.StatusBadRequest, "invalid_type", err.Error(), map[string]any{"type": it.Type})
	}
	var tr *engine.InvalidTransitionError
	if errors.As(err, &tr) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"entity": tr.Entity, "from": tr.From, "to": tr.To})
	}
	var af *engine.AlreadyFinalizedError
	if errors.As(err, &af) {
		return newAPIError(http.StatusConflict, "already_finalized", err.Error(), map[string]any{"card_id": af.CardID, "outcome": af.Outcome})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Patch,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Retentionline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body Principal `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body Principal `json:"body"`
		}{Body: p}, nil
	})
}

type alertPath struct {
	AlertID string `path:"alert_id"`
}

type alertBody struct {
	Body domain.Alert `json:"body"`
}

func registerAlerts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-alert",
		Method:        http.MethodPost,
		Path:          "/alerts",
		Summary:       "Open a retention alert",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAlertRequest `json:"body"`
	}) (*alertBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAlert(ctx, input.Body.toEngine(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &alertBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List alerts, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Column     string `query:"column"`
		StudentRef string `query:"student_ref"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedAlerts `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListAlerts(ctx, engine.AlertFilters{
			Status:          input.Status,
			Column:          input.Column,
			StudentRef:      input.StudentRef,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAlerts{Items: nonNilSlice(items)}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body paginatedAlerts `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-alert",
		Method:      http.MethodGet,
		Path:        "/alerts/{alert_id}",
		Summary:     "Get alert",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *alertPath) (*alertBody, error) {
		a, err := e.GetAlert(ctx, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &alertBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-alert-status",
		Method:      http.MethodPost,
		Path:        "/alerts/{alert_id}/status",
		Summary:     "Change alert status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		AlertID string                `path:"alert_id"`
		Body    SetAlertStatusRequest `json:"body"`
	}) (*alertBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.TransitionStatus(ctx, input.AlertID, domain.AlertStatus(input.Body.Status), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &alertBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-alert-card",
		Method:      http.MethodGet,
		Path:        "/alerts/{alert_id}/card",
		Summary:     "Board card of an alert",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *alertPath) (*cardBody, error) {
		c, err := e.CardForAlert(ctx, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &cardBody{Body: c}, nil
	})
}

type activityBody struct {
	Body domain.Activity `json:"body"`
}

type activityPath struct {
	ActivityID string `path:"activity_id"`
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/alerts/{alert_id}/activities",
		Summary:       "Create an activity; bundle types return every spawned task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		AlertID string                `path:"alert_id"`
		Body    CreateActivityRequest `json:"body"`
	}) (*struct {
		Body activityList `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.CreateActivity(ctx, input.AlertID, input.Body.Type, input.Body.options(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body activityList `json:"body"`
		}{Body: activityList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/alerts/{alert_id}/activities",
		Summary:     "List activities of an alert",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *alertPath) (*struct {
		Body activityList `json:"body"`
	}, error) {
		items, err := e.ListActivities(ctx, input.AlertID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body activityList `json:"body"`
		}{Body: activityList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*activityBody, error) {
		a, err := e.GetActivity(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{activity_id}/complete",
		Summary:     "Complete an activity (idempotent)",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *activityPath) (*activityBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CompleteActivity(ctx, input.ActivityID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &activityBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-negotiation",
		Method:      http.MethodPost,
		Path:        "/activities/{activity_id}/negotiation",
		Summary:     "Record a financial negotiation outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActivityID string                    `path:"activity_id"`
		Body       ResolveNegotiationRequest `json:"body"`
	}) (*struct {
		Body engine.NegotiationResult `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		outcome, err := engine.ParseNegotiationOutcome(input.Body.Outcome, stringOrEmpty(input.Body.EndDate))
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.ResolveNegotiation(ctx, input.ActivityID, outcome, stringOrEmpty(input.Body.Notes), actor)
		if err != nil {
			return nil, handleError(err)
		}
		res.Spawned = nonNilSlice(res.Spawned)
		return &struct {
			Body engine.NegotiationResult `json:"body"`
		}{Body: res}, nil
	})
}

type cardPath struct {
	CardID string `path:"card_id"`
}

type cardBody struct {
	Body domain.Card `json:"body"`
}

func registerBoard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Retention board",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Column   string `query:"column"`
		Priority string `query:"priority"`
		Tag      string `query:"tag"`
	}) (*struct {
		Body boardList `json:"body"`
	}, error) {
		items, err := e.Board(ctx, engine.BoardFilters{Column: input.Column, Priority: input.Priority, Tag: input.Tag})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body boardList `json:"body"`
		}{Body: boardList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-card",
		Method:      http.MethodGet,
		Path:        "/cards/{card_id}",
		Summary:     "Get card",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *cardPath) (*cardBody, error) {
		c, err := e.GetCard(ctx, input.CardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &cardBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-card",
		Method:      http.MethodPost,
		Path:        "/cards/{card_id}/move",
		Summary:     "Move a card to another column",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CardID string          `path:"card_id"`
		Body   MoveCardRequest `json:"body"`
	}) (*cardBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.MoveCard(ctx, input.CardID, domain.Column(input.Body.Column), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &cardBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-card",
		Method:      http.MethodPatch,
		Path:        "/cards/{card_id}",
		Summary:     "Update card priority, tags, notes, attachments or due date",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CardID string            `path:"card_id"`
		Body   UpdateCardRequest `json:"body"`
	}) (*cardBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCard(ctx, input.CardID, input.Body.toEngine(), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &cardBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-card",
		Method:      http.MethodPost,
		Path:        "/cards/{card_id}/finalize",
		Summary:     "Lock the card outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CardID string              `path:"card_id"`
		Body   FinalizeCardRequest `json:"body"`
	}) (*cardBody, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.FinalizeCard(ctx, input.CardID, domain.ResultOutcome(input.Body.Outcome), actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &cardBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "card-history",
		Method:      http.MethodGet,
		Path:        "/cards/{card_id}/history",
		Summary:     "Card history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *cardPath) (*struct {
		Body historyList `json:"body"`
	}, error) {
		items, err := e.CardHistory(ctx, input.CardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body historyList `json:"body"`
		}{Body: historyList{Items: nonNilSlice(items)}}, nil
	})
}

func registerStatistics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "statistics",
		Method:      http.MethodGet,
		Path:        "/statistics",
		Summary:     "Retention statistics for the month, quarter, semester and year",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []stats.PeriodStatistics `json:"body"`
	}, error) {
		out, err := e.Statistics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []stats.PeriodStatistics `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"alert,activity,card"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var afterID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			afterID = parsed
		}
		items, err := e.Repo.ListEvents(ctx, repo.EventFilters{
			UnitID:     e.UnitID,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Type:       input.Type,
			AfterID:    afterID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Name, 0)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
