package pipeline

import (
	"errors"
	"fmt"
)

// Outcome is the reply of one sub-job.
type Outcome struct {
	Topic string
	ID    string
	Path  string
	Err   error
}

// Succeeded tells whether the sub-job replied with success.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Aggregate collects the outcome of every sub-job of a join. A failed
// aggregate keeps the side effects of the sub-jobs that succeeded.
type Aggregate struct {
	Outcomes []Outcome
}

// Failed tells whether any sub-job failed.
func (a Aggregate) Failed() bool {
	for _, o := range a.Outcomes {
		if !o.Succeeded() {
			return true
		}
	}
	return false
}

// Failures lists the failed sub-jobs.
func (a Aggregate) Failures() []Outcome {
	var failures []Outcome
	for _, o := range a.Outcomes {
		if !o.Succeeded() {
			failures = append(failures, o)
		}
	}
	return failures
}

// Count the sub-jobs sent to the topic.
func (a Aggregate) Count(topic string) int {
	n := 0
	for _, o := range a.Outcomes {
		if o.Topic == topic {
			n++
		}
	}
	return n
}

// Err summarizes the failures, nil when everything succeeded.
func (a Aggregate) Err() error {
	failures := a.Failures()
	if len(failures) == 0 {
		return nil
	}

	first := failures[0]
	return &Error{
		Kind:  KindAggregate,
		Stage: first.Topic,
		ID:    first.ID,
		Path:  first.Path,
		Err:   fmt.Errorf("%d of %d jobs failed, first: %w", len(failures), len(a.Outcomes), first.Err),
	}
}

// Retryable tells whether running the whole job again may succeed.
func (a Aggregate) Retryable() bool {
	for _, o := range a.Failures() {
		var e *Error
		if errors.As(o.Err, &e) && !e.Retryable() {
			return false
		}
	}
	return true
}

// Join waits for every future, and for the futures they left pending, and
// collects their outcomes. It never stops at the first failure.
func Join(futures ...*Future) Aggregate {
	var a Aggregate

	queue := append([]*Future(nil), futures...)
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		reply := f.Wait()
		a.Outcomes = append(a.Outcomes, Outcome{
			Topic: f.Topic,
			ID:    f.Message.ID,
			Path:  f.Message.IIIFPath,
			Err:   reply.Err,
		})
		queue = append(queue, reply.Pending...)
	}

	return a
}
