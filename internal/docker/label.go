package docker

import (
	"fmt"
	"time"

	"github.com/docker/docker/api/types/filters"
)

// Label key constants tie a container to the supervised run that created
// it. They share the "e2e-runner." prefix to avoid collisions with labels
// set by other tools.
const (
	// LabelPrefix is the common prefix for all e2e-runner labels.
	LabelPrefix = "e2e-runner."

	// LabelManagedBy identifies containers managed by e2e-runner.
	// Key: "e2e-runner.managed-by", Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunID stores the run identifier of the owning supervisor.
	LabelRunID = LabelPrefix + "run-id"

	// LabelRole names the service the container provides (e.g. "selenium").
	LabelRole = LabelPrefix + "role"

	// LabelCreatedAt stores the RFC3339 creation timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "e2e-runner"

// RoleSelenium is the LabelRole value of the automation server container.
const RoleSelenium = "selenium"

// BuildLabels constructs the label map applied to a managed container.
func BuildLabels(runID, role string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     runID,
		LabelRole:      role,
		// UTC keeps the value independent of the host's timezone.
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ContainerName returns the deterministic container name for a run.
func ContainerName(role, runID string) string {
	if len(runID) > 12 {
		runID = runID[:12]
	}
	return fmt.Sprintf("e2e-runner-%s-%s", role, runID)
}

// ManagedFilter returns list filters matching every container managed by
// e2e-runner with the given role. An empty role matches all roles.
func ManagedFilter(role string) filters.Args {
	args := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if role != "" {
		args.Add("label", LabelRole+"="+role)
	}
	return args
}
