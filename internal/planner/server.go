package planner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/twinagents/internal/dispatch"
	"github.com/kazz187/twinagents/internal/plan"
	"github.com/kazz187/twinagents/pkg/cerr"
	"github.com/kazz187/twinagents/pkg/clog"
	"github.com/kazz187/twinagents/pkg/panicerr"
)

const (
	maxBodyBytes = 1 << 20

	defaultListLimit = 20
	maxListLimit     = 100
)

// PlanResponse answers POST /plan. Firestore carries the record status for whichever store
// backend is configured.
type PlanResponse struct {
	Status      plan.Status       `json:"status"`
	PlanID      string            `json:"plan_id"`
	Firestore   plan.RecordStatus `json:"firestore"`
	PublishedTo string            `json:"published_to"`
	Timestamp   string            `json:"timestamp"`
}

// ErrorResponse is a business error; it is still sent with HTTP 200.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type DirectResponse struct {
	OK        bool              `json:"ok"`
	PlanID    string            `json:"plan_id"`
	Firestore plan.RecordStatus `json:"firestore"`
}

type ListResponse struct {
	Plans []plan.Document `json:"plans"`
}

type Server struct {
	recorder   *plan.Recorder
	dispatcher *dispatch.Dispatcher
	project    string
	now        func() time.Time
}

func NewServer(recorder *plan.Recorder, dispatcher *dispatch.Dispatcher, project string) *Server {
	return &Server{
		recorder:   recorder,
		dispatcher: dispatcher,
		project:    project,
		now:        time.Now,
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Method(http.MethodPost, "/plan", cerr.JSONHandlerFunc(s.createPlan))
	r.Method(http.MethodPost, "/_direct", cerr.JSONHandlerFunc(s.direct))
	r.Method(http.MethodGet, "/plans", cerr.JSONHandlerFunc(s.listPlans))
	r.Method(http.MethodGet, "/plans/{planID}", cerr.JSONHandlerFunc(s.getPlan))
}

func (s *Server) Health() map[string]any {
	return map[string]any{
		"project": s.project,
		"topic":   s.dispatcher.Topic(),
	}
}

func (s *Server) createPlan(r *http.Request) (any, error) {
	ctx := r.Context()
	body := readObject(r)

	p, err := plan.Build(plan.ResolveText(body), s.now())
	if err != nil {
		if errors.Is(err, plan.ErrValidation) {
			slog.InfoContext(ctx, "plan request rejected", "error", err)
			return ErrorResponse{Status: "error", Message: plan.MissingTextMessage}, nil
		}
		return nil, err
	}
	clog.AddPlanID(ctx, p.PlanID)

	// The side effects run independently and neither is cut short by a client disconnect.
	sideCtx := context.WithoutCancel(ctx)
	var (
		wg          conc.WaitGroup
		recorded    plan.RecordStatus
		publishedTo string
	)
	wg.Go(func() {
		doc, err := p.Document()
		if err != nil {
			slog.ErrorContext(sideCtx, "failed to build plan record", "plan_id", p.PlanID, "error", err)
			recorded = plan.RecordFailed
			return
		}
		recorded = s.record(sideCtx, p.PlanID, doc)
	})
	wg.Go(func() {
		publishedTo = s.publish(sideCtx, p)
	})
	wg.Wait()

	return PlanResponse{
		Status:      p.Status,
		PlanID:      p.PlanID,
		Firestore:   recorded,
		PublishedTo: publishedTo,
		Timestamp:   p.Timestamp,
	}, nil
}

// direct stores an arbitrary object as a plan record, filling in plan_id and timestamp.
func (s *Server) direct(r *http.Request) (any, error) {
	ctx := r.Context()
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "failed to read request body", err)
	}
	var doc plan.Document
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "request body must be a JSON object", err)
	}

	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		doc["plan_id"] = id
	}
	if _, ok := doc["timestamp"]; !ok {
		doc["timestamp"] = plan.FormatTimestamp(s.now())
	}
	clog.AddPlanID(ctx, id)

	return DirectResponse{
		OK:        true,
		PlanID:    id,
		Firestore: s.record(context.WithoutCancel(ctx), id, doc),
	}, nil
}

func (s *Server) getPlan(r *http.Request) (any, error) {
	repo := s.recorder.Repository()
	if repo == nil {
		return nil, cerr.NewError(cerr.Unavailable, "plan store is disabled", plan.ErrStoreUnavailable)
	}
	id := chi.URLParam(r, "planID")
	clog.AddPlanID(r.Context(), id)
	return repo.Get(r.Context(), id)
}

func (s *Server) listPlans(r *http.Request) (any, error) {
	repo := s.recorder.Repository()
	if repo == nil {
		return nil, cerr.NewError(cerr.Unavailable, "plan store is disabled", plan.ErrStoreUnavailable)
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, cerr.NewError(cerr.InvalidArgument, "limit must be a positive integer", err)
		}
		limit = min(n, maxListLimit)
	}

	docs, err := repo.List(r.Context(), limit)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []plan.Document{}
	}
	return ListResponse{Plans: docs}, nil
}

// record downgrades every Recorder failure, panics included, to a status tag.
func (s *Server) record(ctx context.Context, id string, doc plan.Document) plan.RecordStatus {
	status, err := panicerr.Try(ctx, func(ctx context.Context) (plan.RecordStatus, error) {
		return s.recorder.Record(ctx, id, doc)
	})
	switch {
	case err == nil:
		slog.InfoContext(ctx, "stored plan", "plan_id", id)
		return status
	case errors.Is(err, plan.ErrStoreUnavailable):
		slog.DebugContext(ctx, "plan store disabled, skipping record", "plan_id", id)
		return plan.RecordDisabled
	default:
		slog.ErrorContext(ctx, "plan record failed", "plan_id", id, "error", err)
		return plan.RecordFailed
	}
}

// publish reports the topic on success and dispatch.PublishFailed otherwise.
func (s *Server) publish(ctx context.Context, p *plan.Plan) string {
	msgID, err := panicerr.Try(ctx, func(ctx context.Context) (string, error) {
		return s.dispatcher.Dispatch(ctx, p)
	})
	switch {
	case err == nil:
		slog.InfoContext(ctx, "published plan", "plan_id", p.PlanID, "topic", s.dispatcher.Topic(), "message_id", msgID)
		return s.dispatcher.Topic()
	case errors.Is(err, dispatch.ErrChannelUnavailable):
		slog.WarnContext(ctx, "channel not configured, skipping publish", "plan_id", p.PlanID)
	default:
		slog.ErrorContext(ctx, "publish failed", "plan_id", p.PlanID, "error", err)
	}
	return dispatch.PublishFailed
}

// readObject decodes the body as a JSON object; anything else reads as an empty one.
func readObject(r *http.Request) map[string]any {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return map[string]any{}
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}
