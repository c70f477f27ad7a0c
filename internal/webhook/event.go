package webhook

// Kind distinguishes the two inbound event variants.
type Kind string

const (
	KindComment Kind = "comment"
	KindMessage Kind = "message"
)

// Event is either a CommentEvent or a MessageEvent.
type Event interface {
	Kind() Kind
}

// Placeholders used when a comment payload omits the author or the post.
const (
	DefaultAuthorName = "amigo"
	DefaultPostTitle  = "tu post"
)

// CommentEvent is a comment left on one of the page's posts.
type CommentEvent struct {
	CommentID  string // Empty when the payload carried no usable id
	Text       string
	AuthorName string
	PostTitle  string
}

func (CommentEvent) Kind() Kind { return KindComment }

// MessageEvent is a direct message sent to the page.
type MessageEvent struct {
	SenderID string
	Text     string
}

func (MessageEvent) Kind() Kind { return KindMessage }
