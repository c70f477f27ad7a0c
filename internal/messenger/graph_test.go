package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/replybot/replybot/internal/logging"
)

type capturedRequest struct {
	method string
	path   string
	token  string
	body   map[string]any
}

func newGraphServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		captured = append(captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			token:  r.URL.Query().Get("access_token"),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestSendPrivateReply(t *testing.T) {
	srv, captured := newGraphServer(t, http.StatusOK, `{"recipient_id":"r1","message_id":"m1"}`)
	g := NewGraphClient(GraphConfig{BaseURL: srv.URL + "/", PageID: "page-1", AccessToken: "tok&en"}, srv.Client())

	res := g.SendPrivateReply(context.Background(), "comment-9", "Hola Ana")
	if !res.Success || res.Error != nil {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.MessageID != "m1" || res.RecipientID != "r1" {
		t.Errorf("unexpected ids %+v", res)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected one request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.method != http.MethodPost || req.path != "/page-1/messages" || req.token != "tok&en" {
		t.Errorf("unexpected request %+v", req)
	}
	recipient := req.body["recipient"].(map[string]any)
	if recipient["comment_id"] != "comment-9" {
		t.Errorf("unexpected recipient %v", recipient)
	}
	if req.body["message"].(map[string]any)["text"] != "Hola Ana" {
		t.Errorf("unexpected message %v", req.body["message"])
	}
}

func TestSendMessageAddressesPSID(t *testing.T) {
	srv, captured := newGraphServer(t, http.StatusOK, `{}`)
	g := NewGraphClient(GraphConfig{BaseURL: srv.URL, PageID: "p", AccessToken: "t"}, srv.Client())

	res := g.SendMessage(context.Background(), "psid-7", "hola")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	recipient := (*captured)[0].body["recipient"].(map[string]any)
	if recipient["id"] != "psid-7" {
		t.Errorf("unexpected recipient %v", recipient)
	}
}

func TestNon2xxIsFailure(t *testing.T) {
	srv, _ := newGraphServer(t, http.StatusBadRequest, `{"error":{"message":"bad comment"}}`)
	g := NewGraphClient(GraphConfig{BaseURL: srv.URL, PageID: "p", AccessToken: "t"}, srv.Client())

	res := g.SendPrivateReply(context.Background(), "c", "x")
	if res.Success {
		t.Fatal("expected failure")
	}
	var apiErr *APIError
	if !errors.As(res.Error, &apiErr) {
		t.Fatalf("expected APIError, got %v", res.Error)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Body, "bad comment") {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestSendValidation(t *testing.T) {
	g := NewGraphClient(GraphConfig{PageID: "p", AccessToken: "t"}, nil)
	if res := g.SendPrivateReply(context.Background(), "", "x"); res.Error == nil {
		t.Error("expected error for empty comment id")
	}
	if res := g.SendMessage(context.Background(), "psid", ""); res.Error == nil {
		t.Error("expected error for empty text")
	}

	unconfigured := NewGraphClient(GraphConfig{}, nil)
	if res := unconfigured.SendMessage(context.Background(), "psid", "x"); res.Error == nil {
		t.Error("expected error without page id and token")
	}
}

func TestTransportErrorHidesToken(t *testing.T) {
	g := NewGraphClient(GraphConfig{BaseURL: "http://127.0.0.1:1", PageID: "p", AccessToken: "supersecret"}, nil)
	res := g.SendMessage(context.Background(), "psid", "x")
	if res.Error == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(res.Error.Error(), "supersecret") {
		t.Errorf("token leaked in %q", res.Error)
	}
}

func TestDryRun(t *testing.T) {
	d := NewDryRun(logging.NewDiscardLogger())
	if res := d.SendPrivateReply(context.Background(), "c1", "hola"); !res.Success {
		t.Errorf("expected success, got %+v", res)
	}
	if res := d.SendMessage(context.Background(), "", "hola"); res.Success {
		t.Error("expected validation failure")
	}
}
