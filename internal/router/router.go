package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/replybot/replybot/internal/audit"
	"github.com/replybot/replybot/internal/classify"
	"github.com/replybot/replybot/internal/logging"
	"github.com/replybot/replybot/internal/messenger"
	"github.com/replybot/replybot/internal/metrics"
	"github.com/replybot/replybot/internal/reply"
	"github.com/replybot/replybot/internal/template"
	"github.com/replybot/replybot/internal/webhook"
)

// State is a step of the per-event state machine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateReplied    State = "replied"
	StateLogged     State = "logged"
	StateDone       State = "done"
)

// Side effects, as reported in logs and metrics.
const (
	effectPrivateReply = "private_reply"
	effectFollowUp     = "follow_up"
	effectAudit        = "audit"
)

// A direct message containing any of these gets no follow-up.
var thanksTokens = []string{"gracias", "thanks"}

// Outcome describes what happened to one event. Trail always ends in StateDone.
type Outcome struct {
	EventID  string
	Kind     webhook.Kind
	Bucket   string
	Reply    string
	Trail    []State
	ReplyErr error // Private reply or follow-up failure
	AuditErr error
}

func (o *Outcome) enter(s State) { o.Trail = append(o.Trail, s) }

// Reached reports whether the event passed through s.
func (o Outcome) Reached(s State) bool {
	for _, t := range o.Trail {
		if t == s {
			return true
		}
	}
	return false
}

// Summary counts what a Dispatch call did.
type Summary struct {
	Comments int
	Messages int
	Failed   int // Records whose processing panicked
	Outcomes []Outcome
}

// Deps are the router's collaborators.
type Deps struct {
	Classifier *classify.Classifier
	Responder  *reply.Responder
	Messenger  messenger.Messenger
	Audit      audit.Appender
	Logger     logging.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
	NewID      func() string
}

// Router runs inbound events through classification, reply and audit.
// Records are processed one at a time; the only shared state is read-only.
type Router struct {
	classifier *classify.Classifier
	responder  *reply.Responder
	messenger  messenger.Messenger
	audit      audit.Appender
	logger     logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	newID      func() string
}

func New(d Deps) *Router {
	r := &Router{
		classifier: d.Classifier,
		responder:  d.Responder,
		messenger:  d.Messenger,
		audit:      d.Audit,
		logger:     d.Logger,
		metrics:    d.Metrics,
		now:        d.Now,
		newID:      d.NewID,
	}
	if r.classifier == nil {
		r.classifier = classify.New(nil)
	}
	if r.responder == nil {
		r.responder = reply.New(template.Default(), reply.Links{}, "")
	}
	if r.audit == nil {
		r.audit = audit.Discard{}
	}
	if r.logger == nil {
		r.logger = logging.NewDiscardLogger()
	}
	if r.messenger == nil {
		r.messenger = messenger.NewDryRun(r.logger)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Dispatch processes events sequentially in order. A record that panics is
// counted as failed and does not affect its siblings.
func (r *Router) Dispatch(ctx context.Context, events []webhook.Event) Summary {
	var sum Summary
	for i, ev := range events {
		out, ok := r.processRecord(ctx, i, ev)
		if !ok {
			sum.Failed++
			continue
		}
		switch out.Kind {
		case webhook.KindComment:
			sum.Comments++
		case webhook.KindMessage:
			sum.Messages++
		}
		sum.Outcomes = append(sum.Outcomes, out)
	}
	return sum
}

func (r *Router) processRecord(ctx context.Context, index int, ev webhook.Event) (out Outcome, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithFields(logging.Fields{
				"record": index,
				"panic":  fmt.Sprint(p),
			}).Error("Record processing aborted")
			ok = false
		}
	}()

	switch e := ev.(type) {
	case webhook.CommentEvent:
		return r.HandleComment(ctx, e), true
	case webhook.MessageEvent:
		return r.HandleMessage(ctx, e), true
	default:
		r.logger.WithFields(logging.Fields{
			"record": index,
			"type":   fmt.Sprintf("%T", ev),
		}).Error("Unsupported event type")
		return Outcome{}, false
	}
}

// HandleComment classifies a comment, answers it privately when it carries an
// id, and records an audit row. Both side effects are always attempted.
func (r *Router) HandleComment(ctx context.Context, ev webhook.CommentEvent) Outcome {
	out := Outcome{EventID: r.newID(), Kind: webhook.KindComment}
	out.enter(StateReceived)

	bucket := r.responder.ResolveBucket(string(r.classifier.Classify(ev.Text)))
	out.Bucket = bucket
	out.enter(StateClassified)
	r.metrics.IncEvent(string(webhook.KindComment), bucket)

	log := r.logger.WithFields(logging.Fields{
		"event_id":   out.EventID,
		"kind":       webhook.KindComment,
		"bucket":     bucket,
		"comment_id": ev.CommentID,
	})

	buildErr := r.guard(func() error {
		vars := r.responder.NewVars(ev.AuthorName, ev.PostTitle)
		out.Reply = r.responder.BuildReply(bucket, template.VariantInitial, vars)
		return nil
	})
	if buildErr != nil {
		log.WithError(buildErr).Error("Failed to build reply")
	}

	switch {
	case ev.CommentID == "":
		r.metrics.IncSideEffect(effectPrivateReply, metrics.ResultSkipped)
		log.Warn("Comment has no id, private reply skipped")
	case buildErr != nil:
		r.metrics.IncSideEffect(effectPrivateReply, metrics.ResultSkipped)
	default:
		out.ReplyErr = r.sideEffect(log, effectPrivateReply, func() error {
			return resultErr(r.messenger.SendPrivateReply(ctx, ev.CommentID, out.Reply))
		})
		if out.ReplyErr == nil {
			out.enter(StateReplied)
		}
	}

	out.AuditErr = r.sideEffect(log, effectAudit, func() error {
		return r.audit.Append(ctx, audit.Row{
			EventID:   out.EventID,
			Timestamp: r.now(),
			Actor:     ev.AuthorName,
			Source:    ev.CommentID,
			Text:      ev.Text,
			Kind:      audit.KindComment,
			Bucket:    bucket,
			Reply:     out.Reply,
		})
	})
	if out.AuditErr == nil {
		out.enter(StateLogged)
	}

	out.enter(StateDone)
	log.Info("Comment processed")
	return out
}

// HandleMessage records a direct message and, unless the sender is just
// saying thanks, sends the fixed follow-up prompt. The bucket is only audited.
func (r *Router) HandleMessage(ctx context.Context, ev webhook.MessageEvent) Outcome {
	out := Outcome{EventID: r.newID(), Kind: webhook.KindMessage}
	out.enter(StateReceived)

	bucket := string(r.classifier.Classify(ev.Text))
	out.Bucket = bucket
	out.enter(StateClassified)
	r.metrics.IncEvent(string(webhook.KindMessage), bucket)

	log := r.logger.WithFields(logging.Fields{
		"event_id": out.EventID,
		"kind":     webhook.KindMessage,
		"bucket":   bucket,
		"psid":     ev.SenderID,
	})

	out.AuditErr = r.sideEffect(log, effectAudit, func() error {
		return r.audit.Append(ctx, audit.Row{
			EventID:   out.EventID,
			Timestamp: r.now(),
			Actor:     ev.SenderID,
			Text:      ev.Text,
			Kind:      audit.KindMessage,
			Bucket:    bucket,
		})
	})
	if out.AuditErr == nil {
		out.enter(StateLogged)
	}

	switch {
	case !wantsFollowUp(ev.Text):
		r.metrics.IncSideEffect(effectFollowUp, metrics.ResultSkipped)
	case ev.SenderID == "":
		r.metrics.IncSideEffect(effectFollowUp, metrics.ResultSkipped)
		log.Warn("Message has no sender id, follow-up skipped")
	default:
		out.Reply = r.responder.FollowUp()
		out.ReplyErr = r.sideEffect(log, effectFollowUp, func() error {
			return resultErr(r.messenger.SendMessage(ctx, ev.SenderID, out.Reply))
		})
		if out.ReplyErr == nil {
			out.enter(StateReplied)
		}
	}

	out.enter(StateDone)
	log.Info("Message processed")
	return out
}

func wantsFollowUp(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, tok := range thanksTokens {
		if strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}

// sideEffect runs fn inside its own failure boundary, then logs and counts the result.
func (r *Router) sideEffect(log logging.Entry, effect string, fn func() error) error {
	err := r.guard(fn)
	if err != nil {
		r.metrics.IncSideEffect(effect, metrics.ResultFailed)
		log.WithError(err).WithField("effect", effect).Error("Side effect failed")
		return err
	}
	r.metrics.IncSideEffect(effect, metrics.ResultOK)
	return nil
}

// guard converts a panic in fn into an error.
func (r *Router) guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func resultErr(res messenger.Result) error {
	if res.Error != nil {
		return res.Error
	}
	if !res.Success {
		return fmt.Errorf("send was not accepted")
	}
	return nil
}
