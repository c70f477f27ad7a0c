package reply

import (
	"github.com/replybot/replybot/internal/template"
)

// Placeholder names understood by the reply templates.
const (
	VarName      = "nombre"
	VarPostTitle = "post_titulo"
	VarWALink    = "wa_link"
	VarFormLink  = "form_link"
)

// DefaultFollowUp is sent to direct-message senders after they answer.
const DefaultFollowUp = "Gracias por contestar — te puedo enviar una guía breve. ¿Prefieres WhatsApp o formulario?"

// Links are the contact links merged into every reply.
type Links struct {
	WhatsApp string
	Form     string
}

// Responder turns a bucket into reply text.
type Responder struct {
	store    *template.Store
	links    Links
	followUp string
}

// New creates a responder. An empty followUp selects DefaultFollowUp.
func New(store *template.Store, links Links, followUp string) *Responder {
	if followUp == "" {
		followUp = DefaultFollowUp
	}
	return &Responder{store: store, links: links, followUp: followUp}
}

// NewVars builds fresh context variables for one event.
func (r *Responder) NewVars(author, postTitle string) template.Vars {
	return template.Vars{
		VarName:      author,
		VarPostTitle: postTitle,
		VarWALink:    r.links.WhatsApp,
		VarFormLink:  r.links.Form,
	}
}

// BuildReply renders variant of bucket with vars.
func (r *Responder) BuildReply(bucket, variant string, vars template.Vars) string {
	return r.store.Render(bucket, variant, vars)
}

// ResolveBucket reports which bucket's templates BuildReply will use.
func (r *Responder) ResolveBucket(bucket string) string {
	return r.store.Resolve(bucket)
}

// FollowUp is the fixed prompt sent after a direct message.
func (r *Responder) FollowUp() string { return r.followUp }
