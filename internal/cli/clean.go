// Package cli — clean.go implements the "e2e-runner clean" command.
//
// The clean command force-removes every automation server container the
// docker backend created. A normal run cleans up after itself and also
// removes stale containers before starting; clean exists for the case
// where the supervisor was killed and no further run is planned.
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/e2e-runner/internal/docker"
	"github.com/shinji-kodama/e2e-runner/internal/model"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool
}

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove automation server containers left by earlier runs",
		Long: `Force-remove all Selenium containers managed by e2e-runner.

Unless --force is specified, the command prompts for confirmation.

Examples:
  e2e-runner clean
  e2e-runner clean --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")

	return cmd
}

// runClean lists managed containers, confirms and removes them.
func runClean(ctx context.Context, in io.Reader, out io.Writer, flags *cleanFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to connect to Docker", err)
	}
	defer func() { _ = cli.Close() }()

	return cleanContainers(ctx, cli, in, out, flags)
}

// cleanContainers does the work of runClean against an existing client.
func cleanContainers(ctx context.Context, cli *docker.Client, in io.Reader, out io.Writer, flags *cleanFlags) error {
	// Step 2: Find managed containers.
	containers, err := docker.ListManagedContainers(ctx, cli, docker.RoleSelenium)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to list containers", err)
	}
	if len(containers) == 0 {
		printCleanResult(out, nil)
		return nil
	}

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptConfirmation(in, out, len(containers))
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	// Step 4: Remove. A container that vanished meanwhile is not an error.
	removed := make([]string, 0, len(containers))
	for _, c := range containers {
		VerboseLog("Removing container %s (%s)", c.ContainerName, c.ContainerID)
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to remove container %s", c.ContainerName), err)
		}
		removed = append(removed, c.ContainerName)
	}

	printCleanResult(out, removed)
	return nil
}

// promptConfirmation asks the user to confirm the removal. Only "y" or
// "yes" (case-insensitive) confirm.
func promptConfirmation(in io.Reader, out io.Writer, count int) (bool, error) {
	fmt.Fprintf(out, "Remove %d managed container(s)? [y/N]: ", count)

	reader := bufio.NewReader(in)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// printCleanResult reports the removed containers.
func printCleanResult(out io.Writer, removed []string) {
	if IsJSONOutput() {
		if removed == nil {
			removed = []string{}
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"removed": removed}, "", "  ")
		fmt.Fprintln(out, string(data))
		return
	}

	if len(removed) == 0 {
		fmt.Fprintln(out, "No managed containers found.")
		return
	}
	for _, name := range removed {
		fmt.Fprintf(out, "Removed %s\n", name)
	}
}
