// Package service is the composition surface over artificer's
// components. One facade exposes generation, artifact, version,
// validation, feedback, and finetuning-pool operations so that callers
// (the CLI, an embedding program) wire exactly one thing.
package service

import (
	"context"
	"errors"
	"fmt"

	"artificer/internal/backend"
	"artificer/internal/config"
	"artificer/internal/contextual"
	"artificer/internal/events"
	"artificer/internal/feedback"
	"artificer/internal/generation"
	"artificer/internal/logging"
	"artificer/internal/training"
	"artificer/internal/validation"
	"artificer/internal/versions"
)

// =============================================================================
// WIRING
// =============================================================================

// Config wires the facade's collaborators. Everything except Rules is
// required; Build assembles a complete set from configuration alone.
type Config struct {
	Cfg          *config.Config
	Orchestrator *generation.Orchestrator
	Registry     *backend.Registry
	Bus          *events.Bus
	Versions     *versions.Store
	Validator    *validation.Validator
	Feedback     *feedback.Store
	Training     *training.Pipeline
	Rules        *validation.RuleWatcher
}

// Service is the single entry point for every inbound operation.
type Service struct {
	cfg       *config.Config
	orch      *generation.Orchestrator
	registry  *backend.Registry
	bus       *events.Bus
	store     *versions.Store
	validator *validation.Validator
	feedback  *feedback.Store
	training  *training.Pipeline
	rules     *validation.RuleWatcher
}

func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Cfg == nil:
		return nil, errors.New("service: config is required")
	case cfg.Orchestrator == nil:
		return nil, errors.New("service: orchestrator is required")
	case cfg.Registry == nil:
		return nil, errors.New("service: backend registry is required")
	case cfg.Bus == nil:
		return nil, errors.New("service: event bus is required")
	case cfg.Versions == nil:
		return nil, errors.New("service: version store is required")
	case cfg.Validator == nil:
		return nil, errors.New("service: validator is required")
	case cfg.Feedback == nil:
		return nil, errors.New("service: feedback store is required")
	case cfg.Training == nil:
		return nil, errors.New("service: training pipeline is required")
	}
	return &Service{
		cfg:       cfg.Cfg,
		orch:      cfg.Orchestrator,
		registry:  cfg.Registry,
		bus:       cfg.Bus,
		store:     cfg.Versions,
		validator: cfg.Validator,
		feedback:  cfg.Feedback,
		training:  cfg.Training,
		rules:     cfg.Rules,
	}, nil
}

// Build constructs the full component graph from configuration: the
// durable stores, the event bus, the validator with optional custom
// rules and hot reload, a simulated backend per configured model rung,
// and the orchestrator on top.
func Build(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store, err := versions.NewStore(cfg.Storage.VersionsDir())
	if err != nil {
		return nil, err
	}
	fb, err := feedback.NewStore(cfg.Storage.FeedbackDir())
	if err != nil {
		return nil, err
	}
	pipeline, err := training.NewPipeline(cfg.Storage, cfg.Training)
	if err != nil {
		return nil, err
	}

	validator := validation.New(validation.Options{
		PassingScore: int(cfg.Validation.PassingThreshold),
		BatchLimit:   cfg.Validation.MaxBatch,
		BatchWorkers: cfg.Validation.BatchWorkers,
	})
	var rules *validation.RuleWatcher
	if cfg.Validation.RulesPath != "" {
		if err := validator.LoadCustomRules(cfg.Validation.RulesPath); err != nil {
			return nil, fmt.Errorf("custom rules: %w", err)
		}
		if cfg.Validation.HotReload {
			rules, err = validation.NewRuleWatcher(validator, cfg.Validation.RulesPath)
			if err != nil {
				return nil, fmt.Errorf("rules watcher: %w", err)
			}
		}
	}

	registry := backend.NewRegistry()
	for _, id := range modelRungs(cfg.Models) {
		registry.Register(id, backend.NewSimulated(id, 0))
	}

	bus := events.NewBus(events.Options{
		SubscriberBuffer: cfg.Events.SubscriberBuffer,
		HistoryLimit:     cfg.Events.HistoryLimit,
	})

	orch, err := generation.New(generation.Config{
		Cfg:       cfg,
		Registry:  registry,
		Bus:       bus,
		Versions:  store,
		Validator: validator,
		Notes:     contextual.NewStaticNotes(),
		Contexts:  contextual.NewCaching(contextual.NewAssembler(), 0),
		HTML:      contextual.NewTemplateHTMLGenerator(),
		Training:  pipeline,
	})
	if err != nil {
		if rules != nil {
			rules.Close()
		}
		bus.Close()
		return nil, err
	}

	return New(Config{
		Cfg:          cfg,
		Orchestrator: orch,
		Registry:     registry,
		Bus:          bus,
		Versions:     store,
		Validator:    validator,
		Feedback:     fb,
		Training:     pipeline,
		Rules:        rules,
	})
}

// modelRungs returns every model id the configuration can route to,
// deduplicated. Registration order does not matter to the registry.
func modelRungs(m config.ModelsConfig) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(m.DefaultLocal)
	for _, id := range m.Preferred {
		add(id)
	}
	for _, id := range m.Fallbacks {
		add(id)
	}
	for _, id := range m.Remotes {
		add(id)
	}
	return out
}

// =============================================================================
// LIFECYCLE & STATS
// =============================================================================

// Close shuts the facade down: job intake stops and workers drain under
// the ctx deadline, then the rules watcher and the bus are released.
// The durable stores need no teardown.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if err := s.orch.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.rules != nil {
		if err := s.rules.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.bus.Close()
	logging.Service("service closed")
	return errors.Join(errs...)
}

// Stats aggregates the runtime picture across every component.
type Stats struct {
	Jobs           generation.Stats    `json:"jobs"`
	Events         events.Stats        `json:"events"`
	Artifacts      int                 `json:"artifacts"`
	Versions       int                 `json:"versions"`
	Validations    int64               `json:"validations"`
	InvalidResults int64               `json:"invalid_results"`
	Feedback       *feedback.Stats     `json:"feedback"`
	PoolSizes      map[string]int      `json:"pool_sizes"`
	HardNegatives  int                 `json:"hard_negatives"`
	PendingBatches int                 `json:"pending_batches"`
	Models         []backend.ModelInfo `json:"models"`
}

func (s *Service) Stats() (*Stats, error) {
	fbStats, err := s.feedback.Stats()
	if err != nil {
		return nil, err
	}
	artifacts, vers := s.store.Count()
	total, invalid := s.validator.Stats()
	return &Stats{
		Jobs:           s.orch.Stats(),
		Events:         s.bus.Stats(),
		Artifacts:      artifacts,
		Versions:       vers,
		Validations:    total,
		InvalidResults: invalid,
		Feedback:       fbStats,
		PoolSizes:      s.training.Pool().Sizes(),
		HardNegatives:  s.training.Negatives().Count(),
		PendingBatches: len(s.training.PendingBatches()),
		Models:         s.registry.ListModels(),
	}, nil
}
