package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBuildLabels verifies every label is set and the timestamp is UTC.
func TestBuildLabels(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)
	created := time.Date(2026, 2, 28, 19, 0, 0, 0, loc)

	labels := BuildLabels("run-1", RoleSelenium, created)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "run-1", labels[LabelRunID])
	assert.Equal(t, RoleSelenium, labels[LabelRole])
	assert.Equal(t, "2026-02-28T10:00:00Z", labels[LabelCreatedAt])
}

// TestContainerName truncates long run IDs.
func TestContainerName(t *testing.T) {
	assert.Equal(t, "e2e-runner-selenium-0123456789ab",
		ContainerName(RoleSelenium, "0123456789abcdef-0000"))
	assert.Equal(t, "e2e-runner-selenium-short", ContainerName(RoleSelenium, "short"))
}

// TestManagedFilter verifies the label filters sent to the daemon.
func TestManagedFilter(t *testing.T) {
	args := ManagedFilter(RoleSelenium)
	assert.True(t, args.ExactMatch("label", LabelManagedBy+"="+ManagedByValue))
	assert.True(t, args.ExactMatch("label", LabelRole+"="+RoleSelenium))

	all := ManagedFilter("")
	assert.Len(t, all.Get("label"), 1)
}
