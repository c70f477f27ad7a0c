package messenger

import (
	"context"

	"github.com/replybot/replybot/internal/logging"
)

// DryRun logs outbound messages instead of sending them.
type DryRun struct {
	logger logging.Logger
}

func NewDryRun(logger logging.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) Name() string { return "dry-run" }

func (d *DryRun) SendPrivateReply(ctx context.Context, commentID, text string) Result {
	if err := validateSend(commentID, text); err != nil {
		return Result{Error: err}
	}
	d.logger.WithFields(logging.Fields{
		"comment_id": commentID,
		"text":       text,
	}).Info("Dry run: private reply not sent")
	return Result{Success: true, RecipientID: commentID}
}

func (d *DryRun) SendMessage(ctx context.Context, psid, text string) Result {
	if err := validateSend(psid, text); err != nil {
		return Result{Error: err}
	}
	d.logger.WithFields(logging.Fields{
		"psid": psid,
		"text": text,
	}).Info("Dry run: direct message not sent")
	return Result{Success: true, RecipientID: psid}
}
