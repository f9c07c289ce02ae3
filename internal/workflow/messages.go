package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gurkanbulca/tasktracker/internal/access"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const noteExcerptLength = 200

func assignedMessage(actor access.Actor, title string) string {
	return fmt.Sprintf("New task assigned (by %s): %s", actor.DisplayName(), title)
}

func editedMessage(actor access.Actor, title string) string {
	return fmt.Sprintf("Task updated (by %s): %s", actor.DisplayName(), title)
}

// updateMessage describes one applied update for its recipients.
func updateMessage(actor access.Actor, taskID int64, status models.TaskStatus, note string, attachments int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s updated task status (#%d) - Status: %s", actor.DisplayName(), taskID, status.Label())
	if excerpt := noteExcerpt(note); excerpt != "" {
		fmt.Fprintf(&b, " - Note: %s", excerpt)
	}
	if attachments > 0 {
		fmt.Fprintf(&b, " - Attachments: %d file(s)", attachments)
	}
	return b.String()
}

// noteExcerpt trims note and cuts it on a rune boundary.
func noteExcerpt(note string) string {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) <= noteExcerptLength {
		return note
	}
	runes := []rune(note)
	return strings.TrimSpace(string(runes[:noteExcerptLength])) + "…"
}
