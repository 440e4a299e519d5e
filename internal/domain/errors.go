package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSpecialistUnavailable  = errors.New("specialist unavailable")
	ErrNoEndpoint             = errors.New("no endpoint configured")
	ErrPlannerFailure         = errors.New("planner failure")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// SpecialistError wraps an invocation failure for one agent.
type SpecialistError struct {
	Agent AgentType
	Err   error
}

func (e SpecialistError) Error() string {
	return fmt.Sprintf("%s specialist: %v", e.Agent, e.Err)
}

func (e SpecialistError) Unwrap() error { return e.Err }
