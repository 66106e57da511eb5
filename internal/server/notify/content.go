package notify

import (
	"fmt"
	"strings"
)

// compose renders subject and plain-text body for msg.
func compose(msg Message) (string, string, error) {
	name := msg.Data[DataName]
	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s,", name)
	}

	var subject string
	var body strings.Builder
	body.WriteString(greeting + "\n\n")

	switch msg.Kind {
	case KindWelcome:
		subject = "Welcome to SubKeeper"
		body.WriteString("Your account is ready. Start adding subscriptions to see where your money goes.\n")
	case KindPasswordChanged:
		subject = "Your SubKeeper password was changed"
		body.WriteString("Your password was just changed. If this wasn't you, reset it immediately.\n")
	case KindPasswordReset:
		url := msg.Data[DataResetURL]
		if url == "" {
			return "", "", fmt.Errorf("password reset message without %s", DataResetURL)
		}
		subject = "Reset your SubKeeper password"
		fmt.Fprintf(&body, "Use the link below to choose a new password. It expires in one hour.\n\n%s\n", url)
	case KindPaymentReminder:
		subject = fmt.Sprintf("Upcoming payment: %s", msg.Data[DataService])
		fmt.Fprintf(&body, "%s will charge %s on %s.\n", msg.Data[DataService], msg.Data[DataAmount], msg.Data[DataDueDate])
	case KindMonthlyReport:
		subject = "Your monthly subscription report"
		fmt.Fprintf(&body, "You have %s active subscriptions costing %s per month.\n", msg.Data[DataCount], msg.Data[DataTotal])
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}

	body.WriteString("\n-- SubKeeper\n")
	return subject, body.String(), nil
}
