// Package metrics defines the standardised job lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/planlab/evalplan-api/internal/observability/errors"
	"github.com/planlab/evalplan-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSweep emits metrics for one retention sweep.
func EmitSweep(sink statsd.Sink, deleted int64, duration time.Duration, err error) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	tags := map[string]string{}
	if err != nil {
		result = ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	sink.Count("sweeper.deleted", deleted, tags)
	if duration > 0 {
		sink.Timing("sweeper.duration", duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
