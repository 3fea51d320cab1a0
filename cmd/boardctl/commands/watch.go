package commands

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/realtime"
)

var watchPlain bool

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Show a project board and follow changes live",
	Long: `Print the board, then reprint it whenever it changes: moves by other
users arrive over the websocket, and the board is refetched after every
reconnect. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "disable colors")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.close()

	p := out
	if watchPlain {
		p = newPalette().plain()
	}
	w := cmd.OutOrStdout()
	var mu sync.Mutex

	gaveUp := make(chan struct{}, 1)
	s.transport.OnStatus(func(state client.State) {
		mu.Lock()
		renderStatus(w, p, state)
		mu.Unlock()
		if state == client.StateGaveUp {
			select {
			case gaveUp <- struct{}{}:
			default:
			}
		}
	})
	// watchers run under the board lock, so they must not call Pending
	s.board.Watch(func(tasks []realtime.TaskSummary) {
		mu.Lock()
		defer mu.Unlock()
		renderBoard(w, p, args[0], tasks, nil)
	})
	tasks := s.board.Tasks()
	saving := make(map[uuid.UUID]bool)
	for _, t := range tasks {
		_, saving[t.ID] = s.board.Pending(t.ID)
	}
	mu.Lock()
	renderBoard(w, p, args[0], tasks, func(t realtime.TaskSummary) bool { return saving[t.ID] })
	mu.Unlock()

	select {
	case <-ctx.Done():
		return nil
	case <-gaveUp:
		return printError("connection lost", "The server stayed unreachable.", []string{"Run boardctl watch again once it is back."})
	}
}
