package notification

import (
	"context"
	"fmt"
	"html"
	"log"

	casedomain "github.com/cavim/platform/internal/case/domain"
)

// UserDirectory resolves a user id to a contact address.
type UserDirectory interface {
	EmailByID(ctx context.Context, id int64) (string, error)
}

// CaseNotifier emails operatives about case events. Every send is best
// effort: a provider failure is logged and never fails the request that
// triggered it.
type CaseNotifier struct {
	sender Sender
	users  UserDirectory
}

// NewCaseNotifier creates a new case notifier
func NewCaseNotifier(sender Sender, users UserDirectory) *CaseNotifier {
	return &CaseNotifier{sender: sender, users: users}
}

// CaseReturned notifies the case creator that coordination returned their
// case to draft with the given motive.
func (n *CaseNotifier) CaseReturned(ctx context.Context, c *casedomain.Case, motive string) {
	email, err := n.users.EmailByID(ctx, c.CreatedBy)
	if err != nil {
		log.Printf("case %d returned: cannot resolve creator email: %v", c.ID, err)
		return
	}

	msg := Message{
		To:      email,
		Subject: fmt.Sprintf("Caso #%d devuelto por coordinación", c.ID),
		HTML: fmt.Sprintf(
			"<p>El caso <strong>#%d</strong> fue devuelto a borrador.</p><p>Motivo: %s</p>",
			c.ID, html.EscapeString(motive),
		),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		log.Printf("case %d returned: notification failed: %v", c.ID, err)
	}
}
