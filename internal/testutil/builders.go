// Package testutil provides testing utilities and helpers for the evalplan job system.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/planlab/evalplan-api/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type: model.JobTypeEvaluationPlan,
			InputData: json.RawMessage(
				`{"messages": [{"role": "user", "content": "Draft an evaluation plan for a youth literacy program."}]}`,
			),
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithInputData sets the raw input payload.
func (b *JobRequestBuilder) WithInputData(raw json.RawMessage) *JobRequestBuilder {
	b.req.InputData = raw
	return b
}

// WithMessages replaces the conversation payload with the given messages.
func (b *JobRequestBuilder) WithMessages(messages ...model.Message) *JobRequestBuilder {
	in := model.JobInput{Messages: messages}
	raw, err := json.Marshal(in)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal messages: %v", err))
	}
	b.req.InputData = raw
	return b
}

// WithUserPrompt replaces the payload with a single user message.
func (b *JobRequestBuilder) WithUserPrompt(content string) *JobRequestBuilder {
	return b.WithMessages(model.Message{Role: "user", Content: content})
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}
