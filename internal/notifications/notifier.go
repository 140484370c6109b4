package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openportal/twofa/internal/models"
	"github.com/openportal/twofa/pkg/logger"
	"github.com/openportal/twofa/pkg/mail"
	"github.com/openportal/twofa/pkg/metrics"
)

// Notifier delivers a one-time verification code to a user out of band.
// Delivery is best effort: implementations report success or failure but
// never abort the flow that requested the code.
type Notifier interface {
	SendCode(ctx context.Context, user *models.User, code string) bool
}

// EmailNotifier sends verification codes over SMTP.
type EmailNotifier struct {
	mailer mail.Mailer
	issuer string
	log    *zap.Logger
}

// NewEmailNotifier builds a notifier on top of the given mailer. The issuer
// names the service in the email subject and body.
func NewEmailNotifier(mailer mail.Mailer, issuer string) (*EmailNotifier, error) {
	if mailer == nil {
		return nil, errors.New("notifications: mailer is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("notifications: issuer is required")
	}

	return &EmailNotifier{
		mailer: mailer,
		issuer: issuer,
		log:    logger.WithModule("notifications"),
	}, nil
}

// SendCode emails the code to the user's address. It returns false when the
// user has no email or delivery fails, logging the cause; it never returns an
// error because delivery problems must not leak into verification semantics.
func (n *EmailNotifier) SendCode(ctx context.Context, user *models.User, code string) bool {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		n.log.Warn("cannot deliver verification code: user has no email address")
		metrics.CodeEmailsSent.WithLabelValues("failure").Inc()
		return false
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("%s verification code", n.issuer),
		Body: fmt.Sprintf(
			"Your %s verification code is: %s\r\n\r\nIf you did not request this code, you can ignore this message.\r\n",
			n.issuer, code,
		),
	}

	if err := n.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, mail.ErrSMTPDisabled) {
			n.log.Warn("verification code not sent: SMTP delivery is disabled",
				zap.String("user_id", user.ID))
		} else {
			n.log.Error("failed to send verification code email",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
		metrics.CodeEmailsSent.WithLabelValues("failure").Inc()
		return false
	}

	metrics.CodeEmailsSent.WithLabelValues("success").Inc()
	n.log.Info("verification code email sent", zap.String("user_id", user.ID))
	return true
}
