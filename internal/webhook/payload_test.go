package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvents(t *testing.T, body string) ([]Event, []Skip) {
	t.Helper()
	p, err := Decode([]byte(body))
	require.NoError(t, err)
	return p.Events()
}

func TestDecodeRejectsNonObject(t *testing.T) {
	for _, body := range []string{"", "   ", "[]", "not json", `"entry"`, `{"entry": 5}`, `{"entry": [`} {
		_, err := Decode([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestDecodeWithoutEntry(t *testing.T) {
	p, err := Decode([]byte(`{"object":"instagram"}`))
	require.NoError(t, err)
	assert.False(t, p.HasEntries())

	p, err = Decode([]byte(`{"entry":[]}`))
	require.NoError(t, err)
	assert.True(t, p.HasEntries())
}

func TestCommentFieldFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected CommentEvent
	}{
		{
			name:  "primary fields",
			value: `{"id":"c1","comment_id":"c2","text":"hola","from":{"username":"ana"},"username":"x","media":{"caption":"Lisboa"}}`,
			expected: CommentEvent{CommentID: "c1", Text: "hola", AuthorName: "ana", PostTitle: "Lisboa"},
		},
		{
			name:     "comment_id and message",
			value:    `{"comment_id":"c2","message":"texto","username":"bob"}`,
			expected: CommentEvent{CommentID: "c2", Text: "texto", AuthorName: "bob", PostTitle: DefaultPostTitle},
		},
		{
			name:     "nested comment id and from_name",
			value:    `{"comment":{"id":"c3"},"from_name":"Carla"}`,
			expected: CommentEvent{CommentID: "c3", AuthorName: "Carla", PostTitle: DefaultPostTitle},
		},
		{
			name:     "numeric id",
			value:    `{"id":17890012345,"text":"hi"}`,
			expected: CommentEvent{CommentID: "17890012345", Text: "hi", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "empty strings fall through",
			value:    `{"id":"","comment_id":"c4","text":"","message":"m","from":{"username":""},"username":"u","media":{"caption":""}}`,
			expected: CommentEvent{CommentID: "c4", Text: "m", AuthorName: "u", PostTitle: DefaultPostTitle},
		},
		{
			name:     "nothing usable",
			value:    `{}`,
			expected: CommentEvent{AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, skips := decodeEvents(t, `{"entry":[{"changes":[{"field":"comments","value":`+tt.value+`}]}]}`)
			require.Empty(t, skips)
			require.Len(t, events, 1)
			assert.Equal(t, tt.expected, events[0])
			assert.Equal(t, KindComment, events[0].Kind())
		})
	}
}

func TestMessagingRecords(t *testing.T) {
	events, skips := decodeEvents(t, `{"entry":[{"messaging":[
		{"sender":{"id":"psid-1"},"message":{"text":"me interesa"}},
		{"sender":{"id":"psid-2"},"message":{}},
		{"sender":{"id":"psid-3"},"read":{"watermark":1}},
		{"sender":{"id":"page"},"message":{"text":"auto","is_echo":true}}
	]}]}`)

	require.Len(t, events, 2)
	assert.Equal(t, MessageEvent{SenderID: "psid-1", Text: "me interesa"}, events[0])
	assert.Equal(t, MessageEvent{SenderID: "psid-2", Text: ""}, events[1])
	assert.Equal(t, KindMessage, events[0].Kind())
	require.Len(t, skips, 2)
	assert.Equal(t, "messaging record without message", skips[0].Reason)
	assert.Equal(t, "echo of page message", skips[1].Reason)
}

func TestEventOrderAndIsolation(t *testing.T) {
	events, skips := decodeEvents(t, `{"entry":[
		{"changes":[
			{"field":"comments","value":{"id":"c1","text":"uno"}},
			{"field":"mentions","value":{"id":"m"}},
			{"field":"comments","value":"not an object"},
			{"field":"comments","value":{"id":{"bad":true}}},
			{"field":"comments","value":{"id":"c2","text":"dos"}}
		],
		"messaging":[{"sender":{"id":"p1"},"message":{"text":"tres"}}]},
		"garbage",
		{"messaging":[{"sender":{"id":"p2"},"message":{"text":"cuatro"}}]}
	]}`)

	require.Len(t, events, 5)
	assert.Equal(t, "c1", events[0].(CommentEvent).CommentID)
	assert.Equal(t, "", events[1].(CommentEvent).CommentID)
	assert.Equal(t, "c2", events[2].(CommentEvent).CommentID)
	assert.Equal(t, "tres", events[3].(MessageEvent).Text)
	assert.Equal(t, "cuatro", events[4].(MessageEvent).Text)

	require.Len(t, skips, 3)
	assert.Equal(t, `unsupported change field "mentions"`, skips[0].Reason)
	assert.Equal(t, "comment change without value", skips[1].Reason)
	assert.Equal(t, Skip{Entry: 1, Reason: "malformed entry"}, skips[2])
}

func TestCommentWithMistypedFieldsStillDecodes(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected CommentEvent
	}{
		{
			name:     "from as string",
			value:    `{"id":"c1","text":"vuelo","from":"ana"}`,
			expected: CommentEvent{CommentID: "c1", Text: "vuelo", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "from as string falls through to username",
			value:    `{"id":"c1","text":"vuelo","from":"ana","username":"ana_ig"}`,
			expected: CommentEvent{CommentID: "c1", Text: "vuelo", AuthorName: "ana_ig", PostTitle: DefaultPostTitle},
		},
		{
			name:     "media as string",
			value:    `{"id":"c1","text":"vuelo","media":"x"}`,
			expected: CommentEvent{CommentID: "c1", Text: "vuelo", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "caption as object",
			value:    `{"id":"c1","media":{"caption":{"text":"Lisboa"}}}`,
			expected: CommentEvent{CommentID: "c1", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "comment as string",
			value:    `{"text":"vuelo","comment":"c1"}`,
			expected: CommentEvent{Text: "vuelo", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "id as object falls through to comment_id",
			value:    `{"id":{"bad":true},"comment_id":"c2","text":"vuelo"}`,
			expected: CommentEvent{CommentID: "c2", Text: "vuelo", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "text as array falls through to message",
			value:    `{"id":"c1","text":["x"],"message":"vuelo"}`,
			expected: CommentEvent{CommentID: "c1", Text: "vuelo", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
		{
			name:     "null members",
			value:    `{"id":"c1","text":null,"from":null,"media":null}`,
			expected: CommentEvent{CommentID: "c1", AuthorName: DefaultAuthorName, PostTitle: DefaultPostTitle},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, skips := decodeEvents(t, `{"entry":[{"changes":[{"field":"comments","value":`+tt.value+`}]}]}`)
			require.Empty(t, skips)
			require.Len(t, events, 1)
			assert.Equal(t, tt.expected, events[0])
		})
	}
}

func TestMessagingWithMistypedFields(t *testing.T) {
	events, skips := decodeEvents(t, `{"entry":[{"messaging":[
		{"sender":{"id":"psid-1"},"message":{"text":"vuelo","is_echo":"false"}},
		{"sender":"psid-2","message":{"text":"reto"}},
		{"sender":{"id":"psid-3"},"message":{"text":{"body":"x"}}},
		{"sender":{"id":"page"},"message":{"text":"auto","is_echo":"true"}},
		{"sender":{"id":"psid-4"},"message":"hola"},
		"garbage"
	]}]}`)

	require.Len(t, events, 3)
	assert.Equal(t, MessageEvent{SenderID: "psid-1", Text: "vuelo"}, events[0])
	assert.Equal(t, MessageEvent{SenderID: "", Text: "reto"}, events[1])
	assert.Equal(t, MessageEvent{SenderID: "psid-3", Text: ""}, events[2])

	require.Len(t, skips, 3)
	assert.Equal(t, "echo of page message", skips[0].Reason)
	assert.Equal(t, "messaging record without message", skips[1].Reason)
	assert.Equal(t, "malformed messaging record", skips[2].Reason)
}

func TestEntryWithMistypedLists(t *testing.T) {
	events, skips := decodeEvents(t, `{"entry":[
		{"changes":"x","messaging":[{"sender":{"id":"p1"},"message":{"text":"uno"}}]},
		{"changes":[{"field":"comments","value":{"id":"c1"}}],"messaging":{"sender":"p2"}}
	]}`)

	require.Len(t, events, 2)
	assert.Equal(t, "uno", events[0].(MessageEvent).Text)
	assert.Equal(t, "c1", events[1].(CommentEvent).CommentID)
	assert.Equal(t, []Skip{
		{Entry: 0, Reason: "malformed changes"},
		{Entry: 1, Reason: "malformed messaging"},
	}, skips)
}
