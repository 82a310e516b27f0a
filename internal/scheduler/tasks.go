package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskFunnelDispatch delivers one scheduled campaign step.
const TaskFunnelDispatch = "funnel.dispatch.step"

// TaskFunnelSweep runs the periodic due-entity sweep.
const TaskFunnelSweep = "funnel.dispatch.sweep"

// FunnelDispatchPayload identifies the entity and step to dispatch.
type FunnelDispatchPayload struct {
	FunnelID string `json:"funnelId"`
	Step     int    `json:"step"`
}

// NewFunnelDispatchTask builds the asynq task for a scheduled dispatch.
func NewFunnelDispatchTask(payload FunnelDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFunnelDispatch, data), nil
}

// ParseFunnelDispatchPayload decodes a dispatch task payload.
func ParseFunnelDispatchPayload(task *asynq.Task) (FunnelDispatchPayload, error) {
	var payload FunnelDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FunnelDispatchPayload{}, err
	}
	return payload, nil
}

// NewFunnelSweepTask builds the periodic sweep task.
func NewFunnelSweepTask() *asynq.Task {
	return asynq.NewTask(TaskFunnelSweep, nil)
}
