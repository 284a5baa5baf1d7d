package notificator

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/core-coin/solvere/pkg/logger"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailNotificator struct {
	logger *logger.Logger

	SMTPHost            string
	SMTPPort            int
	SMTPAlternativePort int
	SMTPSender          string
	Recipient           string

	SMTPAuth smtp.Auth

	sendMail sendMailFunc
}

func NewEmailNotificator(logger *logger.Logger, SMTPHost string, SMTPPort int, SMTPAlternativePort int, SMTPUser string, SMTPPassword string, SMTPSender string, recipient string) *EmailNotificator {
	auth := smtp.PlainAuth(
		"",
		SMTPUser,
		SMTPPassword,
		SMTPHost,
	)

	return &EmailNotificator{
		logger:              logger.Named("email"),
		SMTPAuth:            auth,
		SMTPHost:            SMTPHost,
		SMTPPort:            SMTPPort,
		SMTPAlternativePort: SMTPAlternativePort,
		SMTPSender:          SMTPSender,
		Recipient:           recipient,
		sendMail:            smtp.SendMail,
	}
}

// SendNotification mails the message, falling back to the alternative port.
func (e *EmailNotificator) SendNotification(ctx context.Context, subject, message string) {
	if e.Recipient == "" {
		return
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.SMTPSender, // From address
		e.Recipient,  // To address
		subject,
		message, // Email body
	)

	ports := []int{e.SMTPPort}
	if e.SMTPAlternativePort != 0 && e.SMTPAlternativePort != e.SMTPPort {
		ports = append(ports, e.SMTPAlternativePort)
	}
	var err error
	for _, port := range ports {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		addr := e.SMTPHost + ":" + strconv.Itoa(port)
		if err = e.sendMail(addr, e.SMTPAuth, e.SMTPSender, []string{e.Recipient}, []byte(msg)); err == nil {
			return
		}
		e.logger.Warn("Failed to send email", "addr", addr, "error", err)
	}
	e.logger.Error("Failed to send email notification", "to", e.Recipient, "error", err)
}
