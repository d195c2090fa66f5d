// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/perfscope/perfscope/services/fix_engine/detect"
	"github.com/perfscope/perfscope/services/fix_engine/events"
	"github.com/perfscope/perfscope/services/fix_engine/fix"
)

// State names a phase of an optimizer run.
type State string

const (
	StateSeeding    State = "seeding"
	StateEvaluating State = "evaluating"
	StateEvolving   State = "evolving"
	StateConverged  State = "converged"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// maxFinalSolutions bounds how many evolved solutions a run returns.
const maxFinalSolutions = 5

// evolvedEstimatedMinutes is the fixed effort estimate attached to
// evolved solutions.
const evolvedEstimatedMinutes = 45

var errNoValidSeeds = errors.New("no valid seed candidates")

var tracer = otel.Tracer("perfscope.evolve")

// Optimizer refines an issue's template solutions with a generational
// search. All internal failures resolve to the deterministic generator
// output; Optimize never panics past its own boundary.
//
// Thread Safety: Safe for concurrent use across issues; each Optimize
// call owns its population and random source.
type Optimizer struct {
	cfg       Config
	generator *fix.Generator
	validator *Validator
	emitter   *events.Emitter
	logger    *slog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithEmitter attaches a progress-event emitter. Nil is allowed and means
// no progress reporting.
func WithEmitter(emitter *events.Emitter) Option {
	return func(o *Optimizer) {
		o.emitter = emitter
	}
}

// WithLogger sets the optimizer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// NewOptimizer creates an Optimizer with the given tunables and seed
// source.
func NewOptimizer(cfg Config, generator *fix.Generator, opts ...Option) *Optimizer {
	o := &Optimizer{
		cfg:       cfg,
		generator: generator,
		validator: NewValidator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize runs the generational search for one issue and returns the
// ranked evolved solutions.
//
// Description:
//
//	Seeds a population from the generator's templates, evolves it for up
//	to MaxGenerations generations with tournament-selected crossover and
//	probabilistic mutation, and converts the final top candidates to
//	Solutions of type "evolved". Any internal failure — invalid config,
//	zero valid seeds, a panic mid-run — degrades to the generator's
//	direct output for the issue. One progress event is emitted per
//	evaluated generation.
func (o *Optimizer) Optimize(ctx context.Context, issue detect.Issue) (solutions []detect.Solution) {
	fallback := o.generator.GenerateSolutions(issue)
	if len(fallback) == 0 {
		return fallback
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("optimizer run panicked, falling back to generator output",
				"issue_type", issue.Type,
				"panic", r,
			)
			o.emitTimeout(issue)
			solutions = fallback
		}
	}()

	ctx, span := tracer.Start(ctx, "evolve.Optimize", trace.WithAttributes(
		attribute.String("issue.type", issue.Type),
	))
	defer span.End()

	result, err := o.run(ctx, issue, fallback)
	if err != nil {
		o.logger.Warn("optimizer run failed, falling back to generator output",
			"issue_type", issue.Type,
			"error", err,
		)
		span.SetAttributes(attribute.String("result", string(StateFailed)))
		o.emitTimeout(issue)
		return fallback
	}
	span.SetAttributes(
		attribute.String("result", string(StateDone)),
		attribute.Int("solutions", len(result)),
	)
	return result
}

// run executes the state machine; every error path means fallback.
func (o *Optimizer) run(ctx context.Context, issue detect.Issue, seeds []detect.Solution) ([]detect.Solution, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	seed := o.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	o.emit(events.Event{
		Type:       events.TypeEvolutionStart,
		IssueType:  issue.Type,
		IssueTitle: issue.Title,
	})

	population, err := o.seedPopulation(ctx, seeds, rng)
	if err != nil {
		return nil, err
	}

	calc := o.generator.Calculator()
	finalGeneration := 0
	for gen := 0; gen < o.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		finalGeneration = gen

		for i := range population {
			population[i].Fitness = calc.Fitness(population[i].asSolution())
		}
		best, mean := bestAndMean(population)
		o.emitProgress(issue, gen, best, mean, population)

		if o.converged(gen, best.Fitness, mean, len(population)) {
			break
		}

		offspring := o.evolve(ctx, population, gen+1, rng)
		for i := range offspring {
			offspring[i].Fitness = calc.Fitness(offspring[i].asSolution())
		}
		population = selectSurvivors(rng, append(population, offspring...),
			o.cfg.PopulationSize, o.cfg.ElitismCount)
		if len(population) == 0 {
			return nil, errors.New("population collapsed")
		}
	}

	solutions := o.finalize(issue, population)
	o.emit(events.Event{
		Type:       events.TypeEvolutionComplete,
		IssueType:  issue.Type,
		IssueTitle: issue.Title,
		Progress: &events.Progress{
			Generation:     finalGeneration,
			MaxGenerations: o.cfg.MaxGenerations,
			BestFitness:    bestFitness(solutions),
		},
	})
	return solutions, nil
}

// seedPopulation validates the templates as generation zero and fills the
// remaining slots with validated mutants of randomly chosen templates.
func (o *Optimizer) seedPopulation(ctx context.Context, seeds []detect.Solution, rng *rand.Rand) ([]Candidate, error) {
	population := make([]Candidate, 0, o.cfg.PopulationSize)
	for _, s := range seeds {
		result, err := o.validator.Validate(ctx, s.Code)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			o.logger.Debug("seed template rejected", "type", s.Type, "errors", result.Errors)
			continue
		}
		population = append(population, newSeedCandidate(s))
		if len(population) == o.cfg.PopulationSize {
			break
		}
	}
	if len(population) == 0 {
		return nil, errNoValidSeeds
	}

	templates := make([]Candidate, len(population))
	copy(templates, population)

	for attempts := o.cfg.PopulationSize * 5; len(population) < o.cfg.PopulationSize && attempts > 0; attempts-- {
		parent := templates[rng.Intn(len(templates))]
		mutated := ApplyRandomMutation(ctx, parent.Code, rng)
		if !mutated.OK {
			continue
		}
		result, err := o.validator.Validate(ctx, mutated.Code)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			continue
		}
		population = append(population, Candidate{
			ID:           uuid.NewString(),
			Code:         mutated.Code,
			SolutionType: parent.SolutionType,
			Risk:         parent.Risk,
			Minutes:      parent.Minutes,
			ParentIDs:    []string{parent.ID},
			Mutations:    []string{mutated.Description},
		})
	}
	return population, nil
}

// converged reports whether the run should stop after this generation.
func (o *Optimizer) converged(gen int, best, mean float64, size int) bool {
	if gen == o.cfg.MaxGenerations-1 {
		return true
	}
	return size > 1 && best > 0 && (best-mean)/best < o.cfg.ConvergenceThreshold
}

// evolve produces the next generation's offspring: tournament-selected
// parent pairs crossed in both orderings, each offspring then mutated with
// probability MutationRate. Failed recombination or mutation keeps the
// unchanged parent.
func (o *Optimizer) evolve(ctx context.Context, population []Candidate, generation int, rng *rand.Rand) []Candidate {
	pairs := int(float64(o.cfg.PopulationSize) * o.cfg.CrossoverRate / 2)
	offspring := make([]Candidate, 0, pairs*2)

	for p := 0; p < pairs; p++ {
		pa := tournamentSelect(rng, population, o.cfg.TournamentSize)
		pb := tournamentSelect(rng, population, o.cfg.TournamentSize)

		childAB, childBA, err := Crossover(ctx, pa.Code, pb.Code, rng)
		if err != nil {
			offspring = append(offspring, pa, pb)
			continue
		}
		offspring = append(offspring,
			o.admitChild(ctx, childAB, pa, pb, generation),
			o.admitChild(ctx, childBA, pb, pa, generation),
		)
	}

	for i := range offspring {
		if rng.Float64() >= o.cfg.MutationRate {
			continue
		}
		mutated := ApplyRandomMutation(ctx, offspring[i].Code, rng)
		if !mutated.OK {
			continue
		}
		result, err := o.validator.Validate(ctx, mutated.Code)
		if err != nil || !result.Valid {
			continue
		}
		offspring[i].Code = mutated.Code
		offspring[i].Mutations = append(offspring[i].Mutations, mutated.Description)
	}
	return offspring
}

// admitChild validates one crossover child; rejection keeps the first
// parent unchanged.
func (o *Optimizer) admitChild(ctx context.Context, code string, first, second Candidate, generation int) Candidate {
	result, err := o.validator.Validate(ctx, code)
	if err != nil || !result.Valid {
		return first
	}
	mutations := make([]string, len(first.Mutations))
	copy(mutations, first.Mutations)
	return Candidate{
		ID:           uuid.NewString(),
		Code:         code,
		SolutionType: first.SolutionType,
		Risk:         first.Risk,
		Minutes:      first.Minutes,
		Generation:   generation,
		ParentIDs:    []string{first.ID, second.ID},
		Mutations:    mutations,
	}
}

// finalize converts the top candidates to evolved Solutions.
func (o *Optimizer) finalize(issue detect.Issue, population []Candidate) []detect.Solution {
	sorted := make([]Candidate, len(population))
	copy(sorted, population)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fitness > sorted[j].Fitness
	})
	if len(sorted) > maxFinalSolutions {
		sorted = sorted[:maxFinalSolutions]
	}

	solutions := make([]detect.Solution, 0, len(sorted))
	for i, c := range sorted {
		solutions = append(solutions, detect.Solution{
			ID:           uuid.NewString(),
			IssueID:      issue.ID,
			Rank:         i + 1,
			Type:         fix.TypeEvolved,
			Code:         c.Code,
			FitnessScore: c.Fitness,
			Reasoning: fmt.Sprintf(
				"Evolved over %d generation(s) with %d mutation(s) from a %s template.",
				c.Generation, len(c.Mutations), c.SolutionType),
			EstimatedMinutes: evolvedEstimatedMinutes,
			RiskLevel:        detect.RiskMedium,
		})
	}
	return solutions
}

func (o *Optimizer) emitProgress(issue detect.Issue, gen int, best Candidate, mean float64, population []Candidate) {
	summaries := make([]events.CandidateSummary, 0, len(population))
	for _, c := range population {
		summaries = append(summaries, events.CandidateSummary{
			ID:         c.ID,
			Fitness:    c.Fitness,
			Generation: c.Generation,
			Mutations:  len(c.Mutations),
		})
	}
	o.emit(events.Event{
		Type:       events.TypeEvolutionProgress,
		IssueType:  issue.Type,
		IssueTitle: issue.Title,
		Progress: &events.Progress{
			Generation:     gen,
			MaxGenerations: o.cfg.MaxGenerations,
			BestFitness:    best.Fitness,
			AvgFitness:     mean,
			BestSolution:   best.Code,
			Population:     summaries,
		},
	})
}

func (o *Optimizer) emitTimeout(issue detect.Issue) {
	o.emit(events.Event{
		Type:       events.TypeEvolutionTimeout,
		IssueType:  issue.Type,
		IssueTitle: issue.Title,
	})
}

func (o *Optimizer) emit(event events.Event) {
	o.emitter.Emit(event)
}

func bestFitness(solutions []detect.Solution) float64 {
	if len(solutions) == 0 {
		return 0
	}
	return solutions[0].FitnessScore
}
