package mongo

import (
	"fmt"
	"time"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
)

type jobModel struct {
	ID          string          `bson:"_id"`
	Version     int64           `bson:"version"`
	Input       job.Input       `bson:"input"`
	Stage       string          `bson:"stage"`
	Progress    int             `bson:"progress"`
	Message     string          `bson:"message"`
	Result      job.Result      `bson:"result"`
	Error       *job.StageError `bson:"error,omitempty"`
	CompletedAt *time.Time      `bson:"completed_at,omitempty"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

func toJobModel(j *job.Job, version int64) *jobModel {
	return &jobModel{
		ID:          j.ID.String(),
		Version:     version,
		Input:       j.Input,
		Stage:       string(j.Stage),
		Progress:    j.Progress,
		Message:     j.Message,
		Result:      j.Result,
		Error:       j.Error,
		CompletedAt: j.CompletedAt,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("provision/mongo: parse job id %q: %w", m.ID, err)
	}

	return &job.Job{
		Entity: provision.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Input:       m.Input,
		Stage:       job.Stage(m.Stage),
		Progress:    m.Progress,
		Message:     m.Message,
		Result:      m.Result,
		Error:       m.Error,
		CompletedAt: m.CompletedAt,
	}, nil
}
