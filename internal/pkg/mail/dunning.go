package mail

import (
	"fmt"
	"log"

	"github.com/courseloop/courseloop/app/models"
	"github.com/courseloop/courseloop/internal/pkg/env"
)

// SendPastDueNotice emails a user whose subscription payment failed. Skipped
// silently when SMTP is not configured; errors are logged and swallowed so a
// notification problem never fails webhook processing.
func SendPastDueNotice(user *models.User, sub *models.Subscription) {
	if user == nil || sub == nil || user.Email == "" {
		return
	}
	if env.GetEnv("SMTP_HOST", "") == "" {
		return
	}

	subject := "Your CourseLoop payment needs attention"
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>We could not collect the latest payment for your CourseLoop subscription. "+
			"Your courses stay available while we retry, but please update your payment "+
			"method in the billing portal to keep your plan active.</p>",
		user.Name,
	)

	if err := SendMail(user.Email, subject, body); err != nil {
		log.Printf("failed to send past-due notice for subscription %s: %v", sub.ProviderSubscriptionID, err)
	}
}
