package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/twinagents/internal/client"
	"github.com/kazz187/twinagents/pkg/channel"
)

var (
	app = kingpin.New("twinagents", "Client for the twinagents planner and executor services")

	plannerURL  = app.Flag("planner-url", "Planner base URL").Envar("TWINAGENTS_PLANNER_URL").Default("http://localhost:8080").String()
	executorURL = app.Flag("executor-url", "Executor base URL").Envar("TWINAGENTS_EXECUTOR_URL").Default("http://localhost:8081").String()
	timeout     = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	planCmd  = app.Command("plan", "Submit free text to the planner")
	planText = planCmd.Arg("text", "Task text").Required().String()

	getCmd = app.Command("get", "Show a stored plan")
	getID  = getCmd.Arg("id", "Plan ID").Required().String()

	listCmd   = app.Command("list", "List stored plans, newest first")
	listLimit = listCmd.Flag("limit", "Maximum number of plans").Default("20").Int()

	runCmd          = app.Command("run-task", "Post a plan to the executor")
	runFile         = runCmd.Flag("file", "Plan JSON file; stdin when omitted").Short('f').String()
	runEnvelope     = runCmd.Flag("envelope", "Wrap the plan in a push envelope").Bool()
	runSubscription = runCmd.Flag("subscription", "Subscription name reported in the envelope").Default("twinagents-cli").String()

	envelopeCmd          = app.Command("envelope", "Print the push envelope for a plan")
	envelopeFile         = envelopeCmd.Flag("file", "Plan JSON file; stdin when omitted").Short('f').String()
	envelopeSubscription = envelopeCmd.Flag("subscription", "Subscription name reported in the envelope").Default("twinagents-cli").String()

	healthCmd     = app.Command("health", "Check service health")
	healthService = healthCmd.Arg("service", "planner or executor").Default("planner").Enum("planner", "executor")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	planner := client.NewPlannerClient(*plannerURL, nil)
	executor := client.NewExecutorClient(*executorURL, nil)

	var (
		out any
		err error
	)
	switch command {
	case planCmd.FullCommand():
		out, err = planner.CreatePlan(ctx, *planText)
	case getCmd.FullCommand():
		out, err = planner.GetPlan(ctx, *getID)
	case listCmd.FullCommand():
		out, err = planner.ListPlans(ctx, *listLimit)
	case runCmd.FullCommand():
		out, err = runTask(ctx, executor)
	case envelopeCmd.FullCommand():
		out, err = envelope()
	case healthCmd.FullCommand():
		if *healthService == "executor" {
			out, err = executor.Health(ctx)
		} else {
			out, err = planner.Health(ctx)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, client.ErrPlanRejected) {
			_ = printJSON(os.Stderr, out)
		}
		os.Exit(1)
	}
	if err := printJSON(os.Stdout, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTask(ctx context.Context, executor *client.ExecutorClient) (any, error) {
	data, err := readPlan(*runFile)
	if err != nil {
		return nil, err
	}
	if *runEnvelope {
		return executor.RunTaskPushed(ctx, *runSubscription, data)
	}
	return executor.RunTask(ctx, data)
}

func envelope() (any, error) {
	data, err := readPlan(*envelopeFile)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("plan is not valid JSON")
	}
	return channel.NewPushEnvelope(*envelopeSubscription, channel.Message{
		Data:        data,
		PublishTime: time.Now().UTC(),
	}), nil
}

func readPlan(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
