package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/domain"
)

var moveProject string

var moveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a card to another column",
	Long: `Move a task to TODO, IN_PROGRESS, REVIEW or DONE.

The move is applied to the local board first and rolled back if the server
rejects it. Every other client watching the project sees it at once.

Example:
  boardctl move --project 6f1c... 0b7e... in_progress`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	moveCmd.Flags().StringVarP(&moveProject, "project", "p", "", "project id the task belongs to")
	_ = moveCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(moveCmd)
}

func parseStatus(s string) (domain.TaskStatus, error) {
	status := domain.TaskStatus(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	if !status.Valid() {
		return "", fmt.Errorf("%q: %w", s, domain.ErrInvalidStatus)
	}
	return status, nil
}

func runMove(cmd *cobra.Command, args []string) error {
	taskID, err := uuid.Parse(args[0])
	if err != nil {
		return printError("invalid task id", fmt.Sprintf("%q is not a UUID.", args[0]), nil)
	}
	status, err := parseStatus(args[1])
	if err != nil {
		return printError("invalid status", err.Error(), []string{"Use one of: TODO, IN_PROGRESS, REVIEW, DONE"})
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, moveProject)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.board.Move(ctx, taskID, status); err != nil {
		switch {
		case errors.Is(err, client.ErrUnknownTask):
			return printError("task not on board", fmt.Sprintf("%s is not in project %s.", taskID, moveProject), nil)
		case errors.Is(err, client.ErrForbidden):
			return printError("move rejected", "You cannot change tasks in this project.", nil)
		default:
			return printError("move rejected", err.Error(), nil)
		}
	}

	out.ok.Fprintf(cmd.OutOrStdout(), "✓ moved %s to %s\n", taskID.String()[:8], columnTitles[status])
	return nil
}
