package status

import "github.com/hellno/maschine-sub000/internal/domain"

// Aggregate combines a project record, its setup job and the externally
// observed deployment state into one user-facing status. It is pure and
// total: every input combination maps to exactly one of the six states.
func Aggregate(project *domain.ProjectInfo, setupJob *domain.Job, deployState *domain.DeployState) domain.ProjectStatus {
	if project == nil {
		return domain.ProjectStatus{State: domain.StateError, Message: "Project not found"}
	}
	if setupJob == nil {
		return domain.ProjectStatus{State: domain.StateError, Message: "Info not found"}
	}

	switch setupJob.Status {
	case domain.JobStatusPending, domain.JobStatusInProgress:
		return domain.ProjectStatus{State: domain.StateSettingUp, Message: "Setting up frame..."}
	case domain.JobStatusFailed:
		errMsg := setupJob.Error
		if errMsg == "" {
			errMsg = "Unknown setup error"
		}
		return domain.ProjectStatus{State: domain.StateFailed, Message: "Setup failed", Error: errMsg}
	case domain.JobStatusCompleted:
		return fromDeployState(deployState)
	default:
		return domain.ProjectStatus{State: domain.StateError, Message: "Unknown state"}
	}
}

func fromDeployState(state *domain.DeployState) domain.ProjectStatus {
	if state == nil {
		return domain.ProjectStatus{State: domain.StateUnknown, Message: "No deployment found"}
	}
	switch *state {
	case domain.DeployQueued, domain.DeployBuilding, domain.DeployInitializing:
		return domain.ProjectStatus{State: domain.StateBuilding, Message: "Deployment in progress"}
	case domain.DeployError:
		return domain.ProjectStatus{
			State:   domain.StateError,
			Message: "Deployment failed",
			Error:   "The deployment build reported an error",
		}
	case domain.DeployReady:
		return domain.ProjectStatus{State: domain.StateReady, Message: "Frame is live"}
	default:
		return domain.ProjectStatus{State: domain.StateError, Message: "Unknown state"}
	}
}
