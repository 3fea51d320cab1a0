package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

type palette struct {
	title   *color.Color
	column  *color.Color
	muted   *color.Color
	ok      *color.Color
	warn    *color.Color
	errText *color.Color
	urgent  *color.Color
}

func newPalette() palette {
	return palette{
		title:   color.New(color.Bold),
		column:  color.New(color.FgCyan, color.Bold),
		muted:   color.New(color.FgHiBlack),
		ok:      color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		errText: color.New(color.FgRed, color.Bold),
		urgent:  color.New(color.FgRed),
	}
}

// plain disables every color; used when output is not a terminal and in tests.
func (p palette) plain() palette {
	for _, c := range []*color.Color{p.title, p.column, p.muted, p.ok, p.warn, p.errText, p.urgent} {
		c.DisableColor()
	}
	return p
}

var out = newPalette() //nolint:gochecknoglobals // shared by all commands

var columnTitles = map[domain.TaskStatus]string{ //nolint:gochecknoglobals // fixed labels
	domain.TaskStatusTodo:       "To Do",
	domain.TaskStatusInProgress: "In Progress",
	domain.TaskStatusReview:     "Review",
	domain.TaskStatusDone:       "Done",
}

// renderBoard writes one block per column in board order.
func renderBoard(w io.Writer, p palette, projectID string, tasks []realtime.TaskSummary, pending func(realtime.TaskSummary) bool) {
	p.title.Fprintf(w, "Board %s (%d tasks)\n", projectID, len(tasks))
	cols := client.Columns(tasks)
	for _, status := range domain.TaskStatuses {
		col := cols[status]
		p.column.Fprintf(w, "\n%s (%d)\n", columnTitles[status], len(col))
		if len(col) == 0 {
			p.muted.Fprintln(w, "  -")
			continue
		}
		for _, t := range col {
			renderCard(w, p, t, pending != nil && pending(t))
		}
	}
}

func renderCard(w io.Writer, p palette, t realtime.TaskSummary, pending bool) {
	prio := p.muted
	if t.Priority == domain.TaskPriorityUrgent || t.Priority == domain.TaskPriorityHigh {
		prio = p.urgent
	}
	fmt.Fprintf(w, "  %s ", t.ID.String()[:8])
	fmt.Fprint(w, t.Title)
	prio.Fprintf(w, " [%s]", t.Priority)
	if len(t.Tags) > 0 {
		p.muted.Fprintf(w, " #%s", strings.Join(t.Tags, " #"))
	}
	if pending {
		p.warn.Fprint(w, " (saving)")
	}
	fmt.Fprintln(w)
}

// renderBoards lists the boards a session can watch, ready to paste into
// boardctl watch.
func renderBoards(w io.Writer, p palette, s *client.Session) {
	who := "you"
	if s.User != nil {
		who = s.User.Name
	}
	company := ""
	if s.Company != nil {
		company = " at " + s.Company.Name
	}
	p.title.Fprintf(w, "Signed in as %s%s\n", who, company)
	if len(s.Boards) == 0 {
		p.muted.Fprintln(w, "  no boards yet, ask an admin to add you to a project")
		return
	}
	for _, b := range s.Boards {
		fmt.Fprintf(w, "  %s  ", b.ID)
		fmt.Fprintln(w, b.Name)
	}
}

func renderStatus(w io.Writer, p palette, s client.State) {
	switch s {
	case client.StateOpen:
		p.ok.Fprintln(w, "● connected")
	case client.StateReconnectScheduled, client.StateConnecting:
		p.warn.Fprintf(w, "● %s\n", strings.ToLower(strings.ReplaceAll(s.String(), "_", " ")))
	case client.StateGaveUp:
		p.errText.Fprintln(w, "● disconnected (gave up reconnecting, restart boardctl)")
	case client.StateDisconnected, client.StateClosing:
		p.muted.Fprintln(w, "● disconnected")
	}
}

// printError writes a formatted error to stderr and returns a short error
// for cobra, which is configured not to print it again.
func printError(title, explanation string, suggestions []string) error {
	out.errText.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr)
		for _, s := range suggestions {
			fmt.Fprintf(os.Stderr, "%s\n", s)
		}
	}
	return fmt.Errorf("%s", title)
}
