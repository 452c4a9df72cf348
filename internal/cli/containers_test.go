package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shinji-kodama/e2e-runner/internal/docker"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"unknown", time.Time{}, "-"},
		{"seconds", now.Add(-45 * time.Second), "45s"},
		{"future clamps to zero", now.Add(time.Minute), "0s"},
		{"minutes", now.Add(-3*time.Minute - 10*time.Second), "3m"},
		{"hours", now.Add(-5 * time.Hour), "5h"},
		{"days", now.Add(-26 * time.Hour), "1d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAge(tt.t, now))
		})
	}
}

// TestContainerRows sorts oldest first and tolerates missing labels.
func TestContainerRows(t *testing.T) {
	older := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	rows := containerRows([]docker.ContainerInfo{
		{
			ContainerID:   "bbb",
			ContainerName: "e2e-runner-selenium-new",
			Status:        "running",
			Labels:        docker.BuildLabels("run-new", docker.RoleSelenium, newer),
		},
		{
			ContainerID:   "aaa",
			ContainerName: "e2e-runner-selenium-old",
			Status:        "exited",
			Labels:        docker.BuildLabels("run-old", docker.RoleSelenium, older),
		},
		{ContainerID: "ccc", ContainerName: "unlabelled", Status: "created"},
	})

	names := []string{rows[0].Name, rows[1].Name, rows[2].Name}
	assert.Equal(t, []string{"unlabelled", "e2e-runner-selenium-old", "e2e-runner-selenium-new"}, names)
	assert.Equal(t, "run-old", rows[1].RunID)
	assert.True(t, rows[2].CreatedAt.Equal(newer))
}

func TestPrintContainersText(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printContainersText(&buf, nil, now)
	assert.Equal(t, "No managed containers found.\n", buf.String())

	buf.Reset()
	printContainersText(&buf, []containerRow{
		{Name: "e2e-runner-selenium-1", Status: "running", RunID: "r1", CreatedAt: now.Add(-2 * time.Minute)},
		{Name: "e2e-runner-selenium-2", Status: "exited"},
	}, now)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasSuffix(lines[1], "2m"))
	assert.Contains(t, lines[2], " - ")
}
