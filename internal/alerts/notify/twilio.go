package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the slice of the Twilio REST client used for sending.
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioTransport sends SMS/WhatsApp messages through the Twilio REST API.
type TwilioTransport struct {
	api  messageCreator
	from string
}

// TwilioOption configures the Twilio transport.
type TwilioOption func(*twilio.RestClient)

// WithRequestTimeout bounds each REST request made by the SDK.
func WithRequestTimeout(timeout time.Duration) TwilioOption {
	return func(client *twilio.RestClient) {
		if timeout > 0 {
			client.SetTimeout(timeout)
		}
	}
}

// RequestTimeoutFor returns an SDK request timeout that expires before a send
// attempt bounded by sendTimeout does.
func RequestTimeoutFor(sendTimeout time.Duration) time.Duration {
	if sendTimeout <= 0 {
		return 0
	}
	return sendTimeout - sendTimeout/5
}

// NewTwilioTransport constructs a transport authenticated with an account SID and auth token.
func NewTwilioTransport(accountSID, authToken, from string, opts ...TwilioOption) (*TwilioTransport, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio transport: missing credentials")
	}
	if from == "" {
		return nil, errors.New("twilio transport: empty sender")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	for _, opt := range opts {
		opt(client)
	}
	return &TwilioTransport{api: client.Api, from: from}, nil
}

type twilioResult struct {
	msg *twilioapi.ApiV2010Message
	err error
}

// Send creates a message. The SDK call has no context, so the ctx deadline is enforced around it
// and WithRequestTimeout ends the underlying request first.
func (t *TwilioTransport) Send(ctx context.Context, recipient, body string) (Ack, error) {
	if t == nil || t.api == nil {
		return Ack{}, PermanentError(errors.New("twilio transport: not configured"))
	}
	if recipient == "" {
		return Ack{}, PermanentError(errors.New("twilio transport: empty recipient"))
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(t.from)
	params.SetBody(body)

	done := make(chan twilioResult, 1)
	go func() {
		msg, err := t.api.CreateMessage(params)
		done <- twilioResult{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return Ack{}, TransientError(ctx.Err())
	case res := <-done:
		if res.err != nil {
			return Ack{}, classifyTwilioError(res.err)
		}
		ack := Ack{}
		if res.msg != nil && res.msg.Sid != nil {
			ack.MessageID = *res.msg.Sid
		}
		return ack, nil
	}
}

// classifyTwilioError maps REST failures: throttling and server errors are transient,
// other API rejections (invalid number, auth) are permanent, anything else is a network failure.
func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		wrapped := fmt.Errorf("twilio %d (code %d): %s", restErr.Status, restErr.Code, restErr.Message)
		if restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500 {
			return TransientError(wrapped)
		}
		return PermanentError(wrapped)
	}
	return TransientError(err)
}
