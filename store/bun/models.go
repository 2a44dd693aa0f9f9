package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
)

type jobModel struct {
	bun.BaseModel `bun:"table:provision_jobs"`

	ID          string     `bun:"id,pk"`
	Input       []byte     `bun:"input,notnull,type:jsonb"`
	Stage       string     `bun:"stage,notnull,default:'queued'"`
	Progress    int        `bun:"progress,notnull,default:0"`
	Message     string     `bun:"message,notnull,default:''"`
	Result      []byte     `bun:"result,notnull,type:jsonb"`
	Error       []byte     `bun:"error,type:jsonb"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) (*jobModel, error) {
	input, err := json.Marshal(j.Input)
	if err != nil {
		return nil, fmt.Errorf("provision/bun: marshal input: %w", err)
	}
	result, err := json.Marshal(j.Result)
	if err != nil {
		return nil, fmt.Errorf("provision/bun: marshal result: %w", err)
	}

	m := &jobModel{
		ID:          j.ID.String(),
		Input:       input,
		Stage:       string(j.Stage),
		Progress:    j.Progress,
		Message:     j.Message,
		Result:      result,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.Error != nil {
		errJSON, marshalErr := json.Marshal(j.Error)
		if marshalErr != nil {
			return nil, fmt.Errorf("provision/bun: marshal error: %w", marshalErr)
		}
		m.Error = errJSON
	}
	return m, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("provision/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: provision.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Stage:       job.Stage(m.Stage),
		Progress:    m.Progress,
		Message:     m.Message,
		CompletedAt: m.CompletedAt,
	}
	if err := json.Unmarshal(m.Input, &j.Input); err != nil {
		return nil, fmt.Errorf("provision/bun: unmarshal input: %w", err)
	}
	if len(m.Result) > 0 {
		if err := json.Unmarshal(m.Result, &j.Result); err != nil {
			return nil, fmt.Errorf("provision/bun: unmarshal result: %w", err)
		}
	}
	if len(m.Error) > 0 {
		j.Error = new(job.StageError)
		if err := json.Unmarshal(m.Error, j.Error); err != nil {
			return nil, fmt.Errorf("provision/bun: unmarshal error: %w", err)
		}
	}
	return j, nil
}
