package use_case

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
	"github.com/trunov/assethub/internal/ingest"
	"github.com/trunov/assethub/internal/source"
	"github.com/trunov/assethub/internal/transport/handler"
)

type JobRunner interface {
	Run(ctx context.Context, req ingest.Request) entities.JobResult
}

// RunnerFactory binds the pipeline to a per upload source.
type RunnerFactory func(src ingest.Source) JobRunner

type useCase struct {
	runnerFor RunnerFactory
	encoding  config.EncodingConfig
}

func New(runner *ingest.Runner, encoding config.EncodingConfig) *useCase {
	return NewWithFactory(func(src ingest.Source) JobRunner { return runner.WithSource(src) }, encoding)
}

func NewWithFactory(f RunnerFactory, encoding config.EncodingConfig) *useCase {
	return &useCase{runnerFor: f, encoding: encoding}
}

// IngestUpload runs an admin upload through the same job as webhook files.
// The upload sits in an in-memory source, so source cleanup just drops it.
func (c *useCase) IngestUpload(ctx context.Context, file io.Reader, filename string, params handler.IngestParams) (entities.JobResult, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return entities.JobResult{}, fmt.Errorf("failed to read upload: %w", err)
	}

	mem := source.NewMemory()
	f := mem.Put(path.Join("/uploads", uuid.NewString(), path.Base("/"+filename)), data)

	budget := c.encoding.BudgetFor(params.Category)
	if params.Hero {
		budget = c.encoding.HeroBudget()
	}

	return c.runnerFor(mem).Run(ctx, ingest.Request{
		File:   f,
		Key:    &entities.AssetKey{Namespace: params.Category, Slug: params.AssetKey},
		Budget: budget,
	}), nil
}
