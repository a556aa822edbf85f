package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker/v2"
)

type SendGridTransport struct {
	client  *sendgrid.Client
	breaker *gobreaker.CircuitBreaker[string]
}

const sendGridHost = "https://api.sendgrid.com"

// NewSendGridTransport talks to host, or the public SendGrid API when host is
// empty.
func NewSendGridTransport(apiKey, host string) *SendGridTransport {
	if host == "" {
		host = sendGridHost
	}
	req := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	req.Method = "POST"

	return &SendGridTransport{
		client: &sendgrid.Client{Request: req},
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "sendgrid",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (t *SendGridTransport) Send(ctx context.Context, msg Message) (string, error) {
	from := mail.NewEmail("", msg.From)
	to := mail.NewEmail("", msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	return t.breaker.Execute(func() (string, error) {
		resp, err := t.client.SendWithContext(ctx, m)
		if err != nil {
			return "", fmt.Errorf("sendgrid send: %w", err)
		}
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("sendgrid send: status=%d body=%s", resp.StatusCode, resp.Body)
		}
		if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
			return ids[0], nil
		}
		return "", nil
	})
}
