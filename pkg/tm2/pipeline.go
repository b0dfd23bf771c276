package tm2

import (
	"context"
	"sync"

	"github.com/tm2health/platform/pkg/common/models"
	"github.com/tm2health/platform/pkg/terminology"
)

// Pipeline runs the full cleaning sequence over one uploaded batch:
// load, normalize, validate, deduplicate, aggregate. One batch is one
// all-or-nothing operation with no state shared across batches.
type Pipeline struct {
	loader     *Loader
	normalizer *Normalizer
	validator  *Validator
	aggregator *Aggregator
	workers    int
}

func NewPipeline(opts Options, tr *terminology.Translator) (*Pipeline, error) {
	validator, err := NewValidator(opts)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		loader:     NewLoader(opts.Columns),
		normalizer: NewNormalizer(opts, tr),
		validator:  validator,
		aggregator: NewAggregator(opts),
		workers:    workers,
	}, nil
}

// Run processes one batch. Normalization and validation fan out across
// the configured workers into an index-addressed results slice, so the
// collected outcomes keep source row order and deduplication's
// first-occurrence rule stays deterministic. Cancelling ctx aborts the
// batch with no partial output.
func (p *Pipeline) Run(ctx context.Context, header []string, rows []RawRow) (*models.CleaningResult, error) {
	records, err := p.loader.Load(header, rows)
	if err != nil {
		return nil, err
	}

	outcomes := make([]models.ValidationOutcome, len(records))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = p.validator.Validate(p.normalizer.Normalize(records[i]))
			}
		}()
	}
	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var valid []models.TM2Record
	var invalid []models.ValidationOutcome
	for _, outcome := range outcomes {
		if outcome.IsValid {
			valid = append(valid, outcome.Record)
		} else {
			invalid = append(invalid, outcome)
		}
	}

	decisions := Deduplicate(valid)
	var unique []models.TM2Record
	var duplicates []models.DedupDecision
	for _, decision := range decisions {
		if decision.IsDuplicate {
			duplicates = append(duplicates, decision)
		} else {
			unique = append(unique, decision.Record)
		}
	}

	return &models.CleaningResult{
		Valid:      valid,
		Unique:     unique,
		Invalid:    invalid,
		Duplicates: duplicates,
		Statistics: p.aggregator.Aggregate(outcomes, decisions),
	}, nil
}
