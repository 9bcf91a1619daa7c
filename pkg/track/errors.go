package track

import (
	"errors"
	"fmt"
)

// ErrDuplicateStatusCode is returned by NewConfig when the five core status
// codes are not pairwise distinct.
var ErrDuplicateStatusCode = errors.New("track: the five core status codes must be distinct")

// UnknownStatusError is returned by the key codec and queries when a status
// code is not part of the configuration.
type UnknownStatusError struct {
	Status int
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("track: status code %d is not configured", e.Status)
}

func taskRef(useCaseID, taskID string) string {
	return fmt.Sprintf("Task(use_case_id=%q, task_id=%q)", useCaseID, taskID)
}

// NotInitializedError: the task has no record yet; create it with
// MakeAndSave before starting it.
type NotInitializedError struct {
	UseCaseID string
	TaskID    string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s is not found in the table; run MakeAndSave first to create the tracker item",
		taskRef(e.UseCaseID, e.TaskID))
}

// LockedError: another live lease currently owns the task.
type LockedError struct {
	UseCaseID string
	TaskID    string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s is locked by another worker", taskRef(e.UseCaseID, e.TaskID))
}

// AlreadySucceededError: the task is in the succeeded status and does not
// accept new leases.
type AlreadySucceededError struct {
	UseCaseID string
	TaskID    string
}

func (e *AlreadySucceededError) Error() string {
	return fmt.Sprintf("%s is already succeeded", taskRef(e.UseCaseID, e.TaskID))
}

// IgnoredError: the task exhausted its retries and is terminally ignored.
type IgnoredError struct {
	UseCaseID string
	TaskID    string
}

func (e *IgnoredError) Error() string {
	return fmt.Sprintf("%s is ignored", taskRef(e.UseCaseID, e.TaskID))
}

// NotReadyToStartError: generic acquisition failure. Raised when detailed
// classification was not requested, or when the task's status matches none
// of the more specific cases.
type NotReadyToStartError struct {
	UseCaseID string
	TaskID    string
	// Status is the observed status when classification ran; HasStatus
	// reports whether it was observed at all.
	Status    int
	HasStatus bool
	// Eligible is the pending-equivalent set in effect, when known.
	Eligible []int
}

func (e *NotReadyToStartError) Error() string {
	if e.HasStatus && len(e.Eligible) > 0 {
		return fmt.Sprintf("%s is not ready to start: status %d is not in the ready-to-start set %v",
			taskRef(e.UseCaseID, e.TaskID), e.Status, e.Eligible)
	}
	return fmt.Sprintf("%s is not ready to start: either it is locked or its status is not pending or failed; "+
		"use WithDetailedError for the exact cause", taskRef(e.UseCaseID, e.TaskID))
}

// panicError carries a recovered panic through the failure path so it can
// be recorded in the error history before being re-raised.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
