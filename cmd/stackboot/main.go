package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nholik/stackboot/internal/bootstrap"
	"github.com/nholik/stackboot/internal/cache"
	"github.com/nholik/stackboot/internal/compose"
	"github.com/nholik/stackboot/internal/config"
	"github.com/nholik/stackboot/internal/exitcodes"
	"github.com/nholik/stackboot/internal/healthcheck"
	"github.com/nholik/stackboot/internal/logging"
	"github.com/nholik/stackboot/internal/metrics"
	"github.com/nholik/stackboot/internal/notify"
	"github.com/nholik/stackboot/internal/pipeline"
	"github.com/nholik/stackboot/internal/probe"
	"github.com/nholik/stackboot/internal/retry"
	"github.com/nholik/stackboot/internal/schema"
	"github.com/nholik/stackboot/internal/server"
	"github.com/nholik/stackboot/internal/state"
	"github.com/nholik/stackboot/internal/supervisor"
	"github.com/nholik/stackboot/internal/vectorstore"
	"github.com/nholik/stackboot/internal/wait"
)

const notifyTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New()
		bootLogger.Error().Err(err).Msg("invalid configuration")
		return exitcodes.InvalidConfig
	}
	logger := logging.NewWithLevel(cfg.LogLevel)

	plan, err := config.LoadPlan(cfg.PlanFile)
	if err != nil {
		logger.Error().Err(err).Str("plan_file", cfg.PlanFile).Msg("invalid plan")
		return exitcodes.InvalidConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoints, err := resolveEndpoints(ctx, cfg, plan)
	if err != nil {
		logger.Error().Err(err).Msg("invalid dependency set")
		return exitcodes.InvalidConfig
	}

	collector := metrics.New()
	tracker := healthcheck.NewTracker()
	server.Start(ctx, logger, tracker, collector, cfg.HealthPort, cfg.MetricsPort)

	registry, closeActions := buildActions(logger, cfg)
	defer closeActions()

	steps, err := buildSteps(plan, registry)
	if err != nil {
		logger.Error().Err(err).Msg("invalid init steps")
		return exitcodes.InvalidConfig
	}

	var appSupervisor bootstrap.Supervisor
	if plan.App.Service != "" {
		docker, err := supervisor.NewDockerSupervisor(logger, cfg.DockerHost, cfg.ProbeTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("docker client unavailable")
			return exitcodes.InvalidConfig
		}
		defer docker.Close()
		appSupervisor = docker
	}

	prober := probe.New(logger, probe.WithTimeout(cfg.ProbeTimeout))
	waiter := wait.New(logger, prober, wait.WithRecorder(collector))

	orchestrator := bootstrap.New(logger, waiter, prober, appSupervisor,
		endpoints, steps, appOf(plan),
		bootstrap.WithWaitPolicy(waitPolicyOf(plan)),
		bootstrap.WithStageListener(tracker),
		bootstrap.WithRecorder(collector),
		bootstrap.WithPipelineOptions(pipeline.WithRecorder(collector)),
	)

	result := orchestrator.Run(ctx)

	persistAndNotify(logger, cfg, result)

	return exitcodes.FromOutcome(result.Outcome)
}

// resolveEndpoints merges declared endpoints with compose discovery and
// verifies that every step dependency refers to a known endpoint.
func resolveEndpoints(ctx context.Context, cfg config.Config, plan config.Plan) ([]probe.Endpoint, error) {
	declared := make([]probe.Endpoint, 0, len(plan.Endpoints))
	for _, spec := range plan.Endpoints {
		declared = append(declared, probe.Endpoint{
			Name:     spec.Name,
			Host:     spec.Host,
			Port:     spec.Port,
			Protocol: probe.Protocol(spec.Protocol),
			Path:     spec.Path,
		})
	}

	endpoints := declared
	if cfg.ComposeFile != "" {
		discovered, err := compose.DiscoverEndpoints(ctx, cfg.ComposeFile, "")
		if err != nil {
			return nil, err
		}
		endpoints = compose.Merge(declared, discovered, plan.App.Service)
	}

	known := make(map[string]bool, len(endpoints))
	for _, endpoint := range endpoints {
		known[endpoint.Name] = true
	}
	for _, step := range plan.InitSteps {
		if step.DependsOn != "" && !known[step.DependsOn] {
			return nil, fmt.Errorf("init step %q depends on unknown endpoint %q", step.Name, step.DependsOn)
		}
	}

	return endpoints, nil
}

// buildActions wires each named plan action to its backing service client.
// Connections are opened inside the actions so each retry attempt gets a
// fresh one.
func buildActions(logger zerolog.Logger, cfg config.Config) (map[string]pipeline.Action, func()) {
	verifier := cache.NewVerifier(logger, cfg.RedisAddr)

	actions := map[string]pipeline.Action{
		"create-schema": func(ctx context.Context) error {
			manager, err := schema.Open(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer manager.Close()
			return manager.EnsureSchema(ctx)
		},
		"create-collection": func(ctx context.Context) error {
			client, err := vectorstore.NewClient(logger, cfg.QdrantURL)
			if err != nil {
				return err
			}
			return client.EnsureCollection(ctx, vectorstore.DefaultSpec())
		},
		"verify-cache": func(ctx context.Context) error {
			return verifier.Verify(ctx)
		},
	}

	return actions, func() { _ = verifier.Close() }
}

func buildSteps(plan config.Plan, registry map[string]pipeline.Action) ([]pipeline.Step, error) {
	steps := make([]pipeline.Step, 0, len(plan.InitSteps))
	for _, spec := range plan.InitSteps {
		action, ok := registry[spec.Action]
		if !ok {
			return nil, fmt.Errorf("init step %q: unknown action %q", spec.Name, spec.Action)
		}

		policy := pipeline.DefaultStepPolicy
		if spec.RetryAttempts > 0 {
			policy.MaxAttempts = spec.RetryAttempts
		}
		if spec.RetryInterval > 0 {
			policy.Interval = spec.RetryInterval
		}

		steps = append(steps, pipeline.Step{
			Name:      spec.Name,
			DependsOn: spec.DependsOn,
			Policy:    policy,
			Optional:  spec.Optional,
			Action:    action,
		})
	}
	return steps, nil
}

func waitPolicyOf(plan config.Plan) retry.Policy {
	policy := wait.DefaultPolicy
	if plan.Wait.Interval > 0 {
		policy.Interval = plan.Wait.Interval
	}
	if plan.Wait.MaxAttempts > 0 {
		policy.MaxAttempts = plan.Wait.MaxAttempts
	}
	if plan.Wait.Timeout > 0 {
		policy.Timeout = plan.Wait.Timeout
	}
	return policy
}

func appOf(plan config.Plan) bootstrap.App {
	if plan.App.Service == "" {
		return bootstrap.App{}
	}
	return bootstrap.App{
		Service: plan.App.Service,
		Readiness: probe.Endpoint{
			Name:     plan.App.Service,
			Host:     plan.App.Readiness.Host,
			Port:     plan.App.Readiness.Port,
			Protocol: probe.ProtocolHTTP,
			Path:     plan.App.Readiness.Path,
		},
		LaunchWait: plan.App.LaunchWait,
	}
}

// persistAndNotify records the run and fans out notifications. Both use a
// fresh context so a canceled bootstrap still reports its outcome.
func persistAndNotify(logger zerolog.Logger, cfg config.Config, result bootstrap.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if cfg.StateFile != "" {
		store := state.NewFileStore(cfg.StateFile, logger)
		if err := store.Record(ctx, state.RecordOf(result)); err != nil {
			logger.Error().Err(err).Str("path", cfg.StateFile).Msg("recording run failed")
		}
	}

	notifiers := []notify.Notifier{
		notify.NewSlackNotifier(logger, cfg.SlackWebhookURL),
	}
	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, "")
	if err != nil {
		logger.Error().Err(err).Msg("webhook notifier unavailable")
	} else if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.NotifyDryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	if err := notifier.Notify(ctx, result); err != nil {
		logger.Error().Err(err).Msg("outcome notification failed")
	}
}
