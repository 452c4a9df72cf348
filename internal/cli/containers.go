// Package cli — containers.go implements the "e2e-runner containers" command.
//
// The containers command lists automation server containers created by the
// docker backend, found through the "e2e-runner.managed-by" label. A run
// removes its own container on exit; anything listed here while no run is
// active was left behind by a supervisor that was killed.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/e2e-runner/internal/docker"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// NewContainersCommand creates the "containers" cobra command.
func NewContainersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "containers",
		Short: "List automation server containers managed by e2e-runner",
		Long: `List Selenium containers started by the docker backend.

Examples:
  e2e-runner containers
  e2e-runner containers --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainers(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// runContainers connects to Docker, lists managed containers and prints
// them sorted by creation time.
func runContainers(ctx context.Context, w io.Writer) error {
	// Step 1: Connect to Docker.
	cli, err := docker.NewClient()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to connect to Docker", err)
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "Docker daemon is not running", err)
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: Query containers carrying the managed-by label.
	containers, err := docker.ListManagedContainers(ctx, cli, docker.RoleSelenium)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to list containers", err)
	}
	VerboseLog("Found %d managed containers", len(containers))

	// Step 3: Output.
	rows := containerRows(containers)
	if IsJSONOutput() {
		return printContainersJSON(w, rows)
	}
	printContainersText(w, rows, time.Now())
	return nil
}

// containerRow is one line of containers output.
type containerRow struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	RunID     string    `json:"runId"`
	CreatedAt time.Time `json:"createdAt"`
}

// containerRows extracts the labelled fields and sorts oldest first.
// Containers with an unparsable timestamp sort first.
func containerRows(containers []docker.ContainerInfo) []containerRow {
	rows := make([]containerRow, 0, len(containers))
	for _, c := range containers {
		row := containerRow{
			Name:   c.ContainerName,
			ID:     c.ContainerID,
			Status: c.Status,
			RunID:  c.Labels[docker.LabelRunID],
		}
		if ts, err := time.Parse(time.RFC3339, c.Labels[docker.LabelCreatedAt]); err == nil {
			row.CreatedAt = ts
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows
}

func printContainersJSON(w io.Writer, rows []containerRow) error {
	type resultJSON struct {
		Containers []containerRow `json:"containers"`
	}
	data, err := json.MarshalIndent(resultJSON{Containers: rows}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printContainersText prints an aligned table:
//
//	NAME                          STATUS    RUN ID                                AGE
//	e2e-runner-selenium-1b4e28ba  running   1b4e28ba-2fa1-11d2-883f-0016d3cca427  3m
func printContainersText(w io.Writer, rows []containerRow, now time.Time) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No managed containers found.")
		return
	}

	fmt.Fprintf(w, "%-30s %-10s %-37s %s\n", "NAME", "STATUS", "RUN ID", "AGE")
	for _, r := range rows {
		fmt.Fprintf(w, "%-30s %-10s %-37s %s\n", r.Name, r.Status, orDash(r.RunID), FormatAge(r.CreatedAt, now))
	}
}

// FormatAge renders the time since t in the largest whole unit, or "-"
// when t is unknown.
//
// Example:
//
//	45s → "45s", 3m10s → "3m", 26h → "1d"
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		if d < 0 {
			d = 0
		}
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
