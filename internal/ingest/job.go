package ingest

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trunov/assethub/internal/entities"
)

// Job is one source file moving through the state machine. It lives only
// for the duration of a Runner.Run call.
type Job struct {
	ID       string
	File     entities.SourceFile
	Key      entities.AssetKey
	State    State
	Furthest State
	Attempts int
	Err      error
	Warnings []entities.Warning

	// TempPaths are scratch files removed when the job exits.
	TempPaths []string
	History   []State

	logger zerolog.Logger
}

func newJob(file entities.SourceFile, logger zerolog.Logger) *Job {
	id := uuid.NewString()
	return &Job{
		ID:       id,
		File:     file,
		State:    StatePending,
		Furthest: StatePending,
		Attempts: 1,
		History:  []State{StatePending},
		logger:   logger.With().Str("job_id", id).Str("file", file.Path).Logger(),
	}
}

func (j *Job) transition(to State) {
	if !j.State.CanTransition(to) {
		panic(fmt.Sprintf("ingest: illegal transition %s -> %s", j.State, to))
	}
	j.logger.Debug().Str("from", j.State.String()).Str("to", to.String()).Msg("state transition")
	j.State = to
	j.History = append(j.History, to)
	if to != StateFailed {
		j.Furthest = to
	}
}

// fail records err wrapped with the sentinel kind and moves to failed.
func (j *Job) fail(kind, err error) {
	if errors.Is(err, kind) {
		j.Err = err
	} else {
		j.Err = fmt.Errorf("%w: %w", kind, err)
	}
	j.transition(StateFailed)
}

func (j *Job) warn(kind entities.WarningKind, detail string) {
	j.logger.Warn().Str("warning", string(kind)).Str("asset_key", j.Key.String()).Msg(detail)
	j.Warnings = append(j.Warnings, entities.Warning{Kind: kind, Detail: detail})
}

func (j *Job) removeTemp() {
	for _, p := range j.TempPaths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn().Err(err).Str("path", p).Msg("remove temp file")
		}
	}
	j.TempPaths = nil
}
