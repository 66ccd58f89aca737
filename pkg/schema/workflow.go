package schema

// WorkflowType selects which stage sequence a workflow runs.
type WorkflowType string

const (
	WorkflowFullOnboarding WorkflowType = "FULL_ONBOARDING"
	WorkflowProfilingOnly  WorkflowType = "PROFILING_ONLY"
	WorkflowMappingOnly    WorkflowType = "MAPPING_ONLY"
)

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "PENDING"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowStatusCompleted  WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed     WorkflowStatus = "FAILED"
)

// IsTerminal reports whether the status is final. Terminal workflows are
// never reopened.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// StageName identifies one of the pipeline stages.
type StageName string

const (
	StageProfiling  StageName = "PROFILING"
	StageDictionary StageName = "DICTIONARY"
	StageMapping    StageName = "MAPPING"
)

// StageStatus represents the lifecycle state of one stage attempt.
type StageStatus string

const (
	StageStatusRunning   StageStatus = "RUNNING"
	StageStatusSucceeded StageStatus = "SUCCEEDED"
	StageStatusFailed    StageStatus = "FAILED"
)

// stageSequences maps every workflow type to its fixed stage order.
var stageSequences = map[WorkflowType][]StageName{
	WorkflowFullOnboarding: {StageProfiling, StageDictionary, StageMapping},
	WorkflowProfilingOnly:  {StageProfiling},
	WorkflowMappingOnly:    {StageMapping},
}

// StageSequence returns the ordered stage list for the workflow type.
func StageSequence(t WorkflowType) ([]StageName, error) {
	seq, ok := stageSequences[t]
	if !ok {
		return nil, NewErrorf(ErrCodeInvalidArgument, "unknown workflow type %q", t)
	}
	out := make([]StageName, len(seq))
	copy(out, seq)
	return out, nil
}

// ValidWorkflowTransitions defines the allowed, monotonic status transitions.
var ValidWorkflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowStatusPending:    {WorkflowStatusInProgress, WorkflowStatusFailed},
	WorkflowStatusInProgress: {WorkflowStatusCompleted, WorkflowStatusFailed},
	WorkflowStatusCompleted:  {},
	WorkflowStatusFailed:     {},
}

// ValidStageTransitions defines the allowed stage attempt transitions.
// Attempts open RUNNING and close exactly once.
var ValidStageTransitions = map[StageStatus][]StageStatus{
	StageStatusRunning:   {StageStatusSucceeded, StageStatusFailed},
	StageStatusSucceeded: {},
	StageStatusFailed:    {},
}

// ValidateWorkflowTransition returns an error when the status change is not
// allowed by the workflow lifecycle.
func ValidateWorkflowTransition(from, to WorkflowStatus) error {
	for _, allowed := range ValidWorkflowTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewErrorf(ErrCodeInvalidTransition, "invalid workflow transition %s -> %s", from, to)
}

// ValidateStageTransition returns an error when the stage status change is not
// allowed by the stage attempt lifecycle.
func ValidateStageTransition(from, to StageStatus) error {
	for _, allowed := range ValidStageTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return NewErrorf(ErrCodeInvalidTransition, "invalid stage transition %s -> %s", from, to)
}
