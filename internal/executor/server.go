package executor

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/twinagents/pkg/cerr"
	"github.com/kazz187/twinagents/pkg/clog"
)

const maxBodyBytes = 10 << 20

type Server struct{}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Mount(r chi.Router) {
	r.Method(http.MethodPost, "/run-task", cerr.JSONHandlerFunc(s.runTask))
}

func (s *Server) Health() map[string]any {
	return nil
}

// runTask always answers 200 with a report so the push caller acks the message; an
// undecodable envelope is reported, not retried.
func (s *Server) runTask(r *http.Request) (any, error) {
	ctx := r.Context()
	var d Delivery
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		// Oversized or broken bodies degrade like any unparseable one: echo what was read.
		slog.WarnContext(ctx, "executor could not read request body", "error", err, "read_bytes", len(body))
		d = Delivery{Kind: KindRaw, Plan: map[string]any{"raw": string(body)}}
	} else {
		d = Decode(body)
	}
	if id, ok := d.PlanID().(string); ok {
		clog.AddPlanID(ctx, id)
	}
	attrs := []any{
		"kind", d.Kind.String(),
		"plan", d.Plan,
	}
	if d.MessageID != "" {
		attrs = append(attrs, "message_id", d.MessageID, "subscription", d.Subscription)
	}
	if d.Err != nil {
		slog.WarnContext(ctx, "executor received undecodable message", append(attrs, "error", d.Err)...)
	} else {
		slog.InfoContext(ctx, "executor received plan", attrs...)
	}

	report := Run(d.Plan)
	slog.DebugContext(ctx, "executor finished plan",
		"received_plan_id", fmt.Sprint(report.ReceivedPlanID), "results", len(report.Results))
	return report, nil
}
