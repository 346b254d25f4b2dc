package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeLicenseStatusRefresh = "license:status:refresh"
)

type StatusRefreshPayload struct{}

func NewLicenseStatusRefreshTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := StatusRefreshPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(10 * time.Minute)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeLicenseStatusRefresh, payloadBytes, allOpts...), nil
}
