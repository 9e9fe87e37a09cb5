// Package notifsvc delivers workflow notifications to participants and
// reviewers.
package notifsvc

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/insightlab/insightlab/core"
)

// emailNotifier delivers notifications over email. Delivery is fire and
// forget: the underlying email service sends concurrently and failures are
// logged, never surfaced to the triggering request.
type emailNotifier struct {
	emailSvc core.EmailService
	logger   core.Logger
}

var _ core.NotificationService = (*emailNotifier)(nil)

func NewEmailNotifier(emailSvc core.EmailService, logger core.Logger) core.NotificationService {
	return &emailNotifier{emailSvc: emailSvc, logger: logger}
}

func (svc *emailNotifier) Notify(notifications ...*core.Notification) {
	messages := make([]*core.EmailMessage, 0, len(notifications))
	for _, notif := range notifications {
		if notif.Recipient.Email == "" {
			svc.logger.Warn(fmt.Sprintf("notification %s skipped: recipient #%d has no email", notif.Type, notif.Recipient.ID))
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:      []mail.Address{{Name: notif.Recipient.Name, Address: notif.Recipient.Email}},
			Subject: notif.Title,
			BodyStr: renderBody(notif),
		})
	}
	svc.emailSvc.SendMessages(messages...)
}

func renderBody(notif *core.Notification) string {
	body := new(strings.Builder)
	fmt.Fprintf(body, "Hi %s,\n\n%s\n", notif.Recipient.Name, notif.Message)
	if notif.Sender.Name != "" {
		fmt.Fprintf(body, "\nFrom: %s\n", notif.Sender.Name)
	}
	return body.String()
}
