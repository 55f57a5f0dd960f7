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

	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot move case from submitted to resolved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Civicdesk API.
func New(cfg Config) (http.Handler, error) {
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
			// Schema validation failures are the caller's fault, not a
			// workflow precondition.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Civicdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerCases(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerCommentsAndHistory(group, cfg.Engine)
	registerIdeas(group, cfg.Engine)
	registerPrograms(group, cfg.Engine)
	registerMe(group)
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

// handleError maps the engine's typed errors onto the wire envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var authErr engine.AuthorizationError
	if errors.As(err, &authErr) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": string(authErr.Role)})
	}
	var invErr engine.InvalidTransitionError
	if errors.As(err, &invErr) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": invErr.From, "to": invErr.To})
	}
	var preErr engine.PreconditionError
	if errors.As(err, &preErr) {
		return newAPIError(http.StatusUnprocessableEntity, "precondition_failed", err.Error(), nil)
	}
	var confErr engine.ConflictError
	if errors.As(err, &confErr) {
		return newAPIError(http.StatusConflict, "concurrency_conflict", err.Error(), map[string]any{"issue_id": confErr.IssueID})
	}
	var valErr engine.ValidationError
	if errors.As(err, &valErr) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": valErr.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "not found", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
		return "precondition_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var transitionErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

// getCase resolves a path key that may be a case id or a case code.
func getCase(ctx context.Context, e engine.Engine, key string) (domain.IssueReport, error) {
	rep, err := e.Repo.GetIssue(ctx, key)
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return rep, err
	}
	return e.Repo.GetIssueByCaseCode(ctx, key)
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
    <title>Civicdesk API Docs</title>
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

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "case-counts",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Case counts by status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, authErr := requireStaff(ctx); authErr != nil {
			return nil, authErr
		}
		counts, err := e.Repo.CountIssuesByStatus(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "File an issue report",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Body SubmitCaseRequest `json:"body"`
	}) (*struct {
		Body CaseResponse `json:"body"`
	}, error) {
		p := principalFromContext(ctx)
		rep, err := e.SubmitIssue(ctx, engine.SubmitOptions{
			SectorID:        input.Body.SectorID,
			SubSector:       input.Body.SubSector,
			Category:        input.Body.Category,
			Severity:        input.Body.Severity,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			LocationName:    input.Body.LocationName,
			Latitude:        input.Body.Latitude,
			Longitude:       input.Body.Longitude,
			PhotoURLs:       input.Body.PhotoURLs,
			ReporterName:    input.Body.ReporterName,
			ReporterContact: input.Body.ReporterContact,
		}, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse `json:"body"`
		}{Body: caseResponse(rep, p.IsStaff())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		SectorID    string `query:"sector_id"`
		Severity    string `query:"severity"`
		TaskForceID string `query:"task_force_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedCases `json:"body"`
	}, error) {
		if _, authErr := requireStaff(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListIssues(ctx, repo.IssueFilters{
			Status:          input.Status,
			SectorID:        input.SectorID,
			Severity:        input.Severity,
			TaskForceID:     input.TaskForceID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedCases{Items: []CaseResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		resp.Items = mapCases(items, true)
		return &struct {
			Body paginatedCases `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{key}",
		Summary:     "Get a case by id or case code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body CaseResponse `json:"body"`
	}, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse `json:"body"`
		}{Body: caseResponse(rep, principalFromContext(ctx).IsStaff())}, nil
	})

	type transitionInput struct {
		Key  string            `path:"key"`
		Body TransitionRequest `json:"body"`
	}
	type caseOutput struct {
		Body CaseResponse `json:"body"`
	}
	registerTransition := func(opID, urlPath, summary string, fn func(context.Context, string, domain.Principal, string) (domain.IssueReport, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/cases/{key}" + urlPath,
			Summary:     summary,
			Errors:      transitionErrors,
		}, func(ctx context.Context, input *transitionInput) (*caseOutput, error) {
			rep, err := getCase(ctx, e, input.Key)
			if err != nil {
				return nil, handleError(err)
			}
			rep, err = fn(ctx, rep.ID, principalFromContext(ctx), input.Body.Note)
			if err != nil {
				return nil, handleError(err)
			}
			return &caseOutput{Body: caseResponse(rep, true)}, nil
		})
	}

	registerTransition("acknowledge-case", "/acknowledge", "Acknowledge a submitted case", e.Acknowledge)
	registerTransition("forward-case", "/forward", "Forward a case to the administration", e.Forward)
	registerTransition("start-assessment", "/assessment/start", "Begin the assessment stage", e.StartAssessment)
	registerTransition("start-resolution", "/resolution/start", "Begin the resolution stage", e.StartResolution)
	registerTransition("close-case", "/close", "Close a resolved case", e.CloseCase)

	huma.Register(api, huma.Operation{
		OperationID: "assign-case",
		Method:      http.MethodPost,
		Path:        "/cases/{key}/assign",
		Summary:     "Assign a case to a task force member",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string        `path:"key"`
		Body AssignRequest `json:"body"`
	}) (*caseOutput, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err = e.AssignTaskForce(ctx, rep.ID, input.Body.TaskForceID, principalFromContext(ctx), input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: caseResponse(rep, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "allocate-resources",
		Method:      http.MethodPost,
		Path:        "/cases/{key}/allocate",
		Summary:     "Allocate budget and resources",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string          `path:"key"`
		Body AllocateRequest `json:"body"`
	}) (*caseOutput, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err = e.AllocateResources(ctx, rep.ID, engine.AllocateOptions{
			Budget:    input.Body.Budget,
			Resources: input.Body.Resources,
			Note:      input.Body.Note,
		}, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: caseResponse(rep, true)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-case",
		Method:      http.MethodPost,
		Path:        "/cases/{key}/reject",
		Summary:     "Reject a case",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string        `path:"key"`
		Body RejectRequest `json:"body"`
	}) (*caseOutput, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err = e.RejectCase(ctx, rep.ID, input.Body.Reason, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: caseResponse(rep, true)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	type reportOutput struct {
		Body ReportResponse `json:"body"`
	}
	type caseOutput struct {
		Body CaseResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-case-report",
		Method:      http.MethodGet,
		Path:        "/cases/{key}/reports/{phase}",
		Summary:     "Get a case's assessment or resolution report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key   string `path:"key"`
		Phase string `path:"phase" enum:"assessment,resolution"`
	}) (*reportOutput, error) {
		if _, authErr := requireStaff(ctx); authErr != nil {
			return nil, authErr
		}
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.Repo.GetReportForIssue(ctx, rep.ID, input.Phase)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-report-draft",
		Method:      http.MethodPut,
		Path:        "/cases/{key}/reports/{phase}/draft",
		Summary:     "Update a report draft",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key   string               `path:"key"`
		Phase string               `path:"phase" enum:"assessment,resolution"`
		Body  ReportContentRequest `json:"body"`
	}) (*reportOutput, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.SaveReportDraft(ctx, rep.ID, input.Phase, engine.ReportOptions{
			Summary:       input.Body.Summary,
			Details:       input.Body.Details,
			EstimatedCost: input.Body.EstimatedCost,
			DocumentURLs:  input.Body.DocumentURLs,
		}, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: reportResponse(report)}, nil
	})

	registerSubmit := func(opID, phase string, fn func(context.Context, string, engine.ReportOptions, domain.Principal) (domain.IssueReport, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/cases/{key}/" + phase + "/submit",
			Summary:     "Submit the " + phase + " report for review",
			Errors:      transitionErrors,
		}, func(ctx context.Context, input *struct {
			Key  string               `path:"key"`
			Body ReportContentRequest `json:"body"`
		}) (*caseOutput, error) {
			rep, err := getCase(ctx, e, input.Key)
			if err != nil {
				return nil, handleError(err)
			}
			rep, err = fn(ctx, rep.ID, engine.ReportOptions{
				Summary:       input.Body.Summary,
				Details:       input.Body.Details,
				EstimatedCost: input.Body.EstimatedCost,
				DocumentURLs:  input.Body.DocumentURLs,
			}, principalFromContext(ctx))
			if err != nil {
				return nil, handleError(err)
			}
			return &caseOutput{Body: caseResponse(rep, true)}, nil
		})
	}
	registerSubmit("submit-assessment", "assessment", e.SubmitAssessment)
	registerSubmit("submit-resolution", "resolution", e.SubmitResolution)

	huma.Register(api, huma.Operation{
		OperationID: "review-assessment",
		Method:      http.MethodPost,
		Path:        "/cases/{key}/assessment/review",
		Summary:     "Review the assessment report",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string        `path:"key"`
		Body ReviewRequest `json:"body"`
	}) (*reportOutput, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.ReviewAssessment(ctx, rep.ID, input.Body.Outcome, input.Body.Notes, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-resolution",
		Method:      http.MethodPost,
		Path:        "/cases/{key}/resolution/review",
		Summary:     "Review the resolution report",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string        `path:"key"`
		Body ReviewRequest `json:"body"`
	}) (*struct {
		Body ReviewResponse `json:"body"`
	}, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		rep, report, err := e.ReviewResolution(ctx, rep.ID, input.Body.Outcome, input.Body.Notes, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewResponse `json:"body"`
		}{Body: ReviewResponse{Case: caseResponse(rep, true), Report: reportResponse(report)}}, nil
	})
}

func registerCommentsAndHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/cases/{key}/comments",
		Summary:       "Add a staff comment",
		DefaultStatus: http.StatusCreated,
		Errors:        transitionErrors,
	}, func(ctx context.Context, input *struct {
		Key  string         `path:"key"`
		Body CommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		c, err := e.AddComment(ctx, rep.ID, input.Body.Body, input.Body.Internal, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/cases/{key}/comments",
		Summary:     "List case comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListComments(ctx, rep.ID, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-history",
		Method:      http.MethodGet,
		Path:        "/cases/{key}/history",
		Summary:     "Case status history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Key string `path:"key"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		rep, err := getCase(ctx, e, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListHistory(ctx, rep.ID, principalFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: mapHistory(items)}, nil
	})
}

func registerIdeas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-idea",
		Method:        http.MethodPost,
		Path:          "/ideas",
		Summary:       "Submit a community idea",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body IdeaRequest `json:"body"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		idea, err := e.SubmitIdea(ctx, input.Body.Title, input.Body.Description, input.Body.AuthorName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "List community ideas by vote count",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Idea `json:"body"`
	}, error) {
		items, err := e.Repo.ListIdeas(ctx, input.Status, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Idea `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote-idea",
		Method:      http.MethodPost,
		Path:        "/ideas/{id}/vote",
		Summary:     "Vote for an idea",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body VoteRequest `json:"body"`
	}) (*struct {
		Body VoteResponse `json:"body"`
	}, error) {
		idea, counted, err := e.VoteIdea(ctx, input.ID, input.Body.Voter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VoteResponse `json:"body"`
		}{Body: VoteResponse{Idea: idea, Counted: counted}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-idea-status",
		Method:      http.MethodPatch,
		Path:        "/ideas/{id}/status",
		Summary:     "Triage an idea",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body IdeaStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleWebAdmin)
		if authErr != nil {
			return nil, authErr
		}
		idea, err := e.SetIdeaStatus(ctx, input.ID, input.Body.Status, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})
}

func registerPrograms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-program",
		Method:        http.MethodPost,
		Path:          "/programs",
		Summary:       "Open a youth program",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ProgramRequest `json:"body"`
	}) (*struct {
		Body domain.Program `json:"body"`
	}, error) {
		p, authErr := requireRole(ctx, domain.RoleWebAdmin)
		if authErr != nil {
			return nil, authErr
		}
		prog, err := e.CreateProgram(ctx, input.Body.Name, input.Body.Description, input.Body.Capacity, input.Body.StartsOn, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Program `json:"body"`
		}{Body: prog}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-programs",
		Method:      http.MethodGet,
		Path:        "/programs",
		Summary:     "List programs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Program `json:"body"`
	}, error) {
		items, err := e.Repo.ListPrograms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Program `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register-participant",
		Method:        http.MethodPost,
		Path:          "/programs/{id}/registrations",
		Summary:       "Register for a program",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body RegistrationRequest `json:"body"`
	}) (*struct {
		Body domain.Registration `json:"body"`
	}, error) {
		reg, err := e.RegisterParticipant(ctx, input.ID, input.Body.Participant, input.Body.Contact, input.Body.GuardianName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Registration `json:"body"`
		}{Body: reg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-registrations",
		Method:      http.MethodGet,
		Path:        "/programs/{id}/registrations",
		Summary:     "List program registrants",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Registration `json:"body"`
	}, error) {
		if _, authErr := requireStaff(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListRegistrations(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Registration `json:"body"`
		}{Body: items}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Resolved principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Principal `json:"body"`
	}, error) {
		return &struct {
			Body domain.Principal `json:"body"`
		}{Body: principalFromContext(ctx)}, nil
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// composeCursor packs the (created_at, id) position of the last row into an
// opaque token.
func composeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed cursor")
	}
	return parts[0], parts[1], nil
}
