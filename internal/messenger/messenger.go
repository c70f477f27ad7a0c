package messenger

import (
	"context"
	"fmt"
)

// Result is the outcome of one outbound send.
type Result struct {
	Success     bool
	MessageID   string
	RecipientID string
	Error       error
}

// Messenger delivers replies through the platform's messaging API.
type Messenger interface {
	// SendPrivateReply answers a comment privately. Non-2xx responses are failures.
	SendPrivateReply(ctx context.Context, commentID, text string) Result
	// SendMessage sends free text to a page-scoped user id.
	SendMessage(ctx context.Context, psid, text string) Result
	Name() string
}

// APIError is returned for non-2xx responses from the messaging API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging API returned %d: %s", e.StatusCode, e.Body)
}

func validateSend(recipient, text string) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if text == "" {
		return fmt.Errorf("message text is empty")
	}
	return nil
}
