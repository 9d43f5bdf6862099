package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/benvon/process-rest/internal/request"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// upstream records the last request it received and answers with status and body.
type upstream struct {
	status int
	body   string

	gotMethod  string
	gotHeader  http.Header
	gotQuery   url.Values
	gotBody    []byte
	gotForm    map[string][]string
	gotFileLen int
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.gotMethod = r.Method
	u.gotHeader = r.Header.Clone()
	u.gotQuery = r.URL.Query()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			u.gotForm = r.MultipartForm.Value
			if files := r.MultipartForm.File["upload"]; len(files) == 1 {
				u.gotFileLen = int(files[0].Size)
			}
		}
	} else {
		u.gotBody, _ = io.ReadAll(r.Body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(u.status)
	_, _ = io.WriteString(w, u.body)
}

func newUpstream(t *testing.T, status int, body string) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{status: status, body: body}
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)
	return u, srv
}

func TestGet_UnwrapsEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"code 200", `{"code":200,"message":"ok","data":{"id":7,"name":"kim"}}`},
		{"code 100", `{"code":100,"message":"continue","data":{"id":7,"name":"kim"}}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, srv := newUpstream(t, http.StatusOK, tt.body)
			c := NewClient(srv.Client(), nil)

			got, err := Get(context.Background(), c, Request{URL: srv.URL + "/users/7", Token: NoToken}, JSON[user]())
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.ID != 7 || got.Name != "kim" {
				t.Errorf("Get() = %+v, want {7 kim}", got)
			}
		})
	}
}

func TestGet_HeadersAndParams(t *testing.T) {
	t.Parallel()

	u, srv := newUpstream(t, http.StatusOK, `{"code":200,"data":null}`)
	c := NewClient(srv.Client(), nil)

	ctx := request.WithRequestID(context.Background(), "req-42")
	req := Request{
		URL:    srv.URL + "/search?fixed=1",
		Params: url.Values{"q": {"cors"}, "page": {"2"}},
		Token:  "secret-token",
	}
	if _, err := Get(ctx, c, req, Raw()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if u.gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", u.gotMethod)
	}
	checks := map[string]string{
		"Cache-Control": "no-store",
		"Pragma":        "no-cache",
		"Authorization": "Bearer secret-token",
		"Content-Type":  "application/json;charset=UTF-8",
		"X-Request-Id":  "req-42",
	}
	for k, want := range checks {
		if got := u.gotHeader.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if u.gotQuery.Get("fixed") != "1" || u.gotQuery.Get("q") != "cors" || u.gotQuery.Get("page") != "2" {
		t.Errorf("query = %v, want fixed, q and page", u.gotQuery)
	}
}

func TestPost_NoTokenOmitsAuthorization(t *testing.T) {
	t.Parallel()

	for _, token := range []string{NoToken, ""} {
		u, srv := newUpstream(t, http.StatusOK, `{"code":200,"data":1}`)
		c := NewClient(srv.Client(), nil)
		if _, err := Post(context.Background(), c, Request{URL: srv.URL, Token: token}, JSON[int]()); err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		if got := u.gotHeader.Get("Authorization"); got != "" {
			t.Errorf("token %q: Authorization = %q, want none", token, got)
		}
	}
}

func TestPost_JSONBody(t *testing.T) {
	t.Parallel()

	u, srv := newUpstream(t, http.StatusOK, `{"code":200,"message":"created","data":{"id":1,"name":"lee"}}`)
	c := NewClient(srv.Client(), nil)

	got, err := Post(context.Background(), c, Request{
		URL:   srv.URL + "/users",
		Body:  user{Name: "lee"},
		Kind:  KindJSON,
		Token: "t",
	}, JSON[user]())
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if got.ID != 1 {
		t.Errorf("Post() = %+v, want id 1", got)
	}
	if u.gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", u.gotMethod)
	}
	var sent user
	if err := json.Unmarshal(u.gotBody, &sent); err != nil || sent.Name != "lee" {
		t.Errorf("body = %s, want a JSON user named lee", u.gotBody)
	}
}

func TestPost_Multipart(t *testing.T) {
	t.Parallel()

	u, srv := newUpstream(t, http.StatusOK, `{"code":200,"data":"stored"}`)
	c := NewClient(srv.Client(), nil)

	body := Multipart{
		Fields: map[string][]string{"title": {"report"}},
		Files:  []File{{Field: "upload", Filename: "r.txt", Content: strings.NewReader("hello")}},
	}
	got, err := Post(context.Background(), c, Request{URL: srv.URL, Body: body, Kind: KindMultipart, Token: NoToken}, JSON[string]())
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if got != "stored" {
		t.Errorf("Post() = %q, want stored", got)
	}
	if !strings.HasPrefix(u.gotHeader.Get("Content-Type"), "multipart/form-data; boundary=") {
		t.Errorf("Content-Type = %q, want multipart/form-data", u.gotHeader.Get("Content-Type"))
	}
	if v := u.gotForm["title"]; len(v) != 1 || v[0] != "report" {
		t.Errorf("form title = %v, want [report]", v)
	}
	if u.gotFileLen != len("hello") {
		t.Errorf("uploaded file size = %d, want %d", u.gotFileLen, len("hello"))
	}
}

func TestPost_MultipartRejectsOtherBodies(t *testing.T) {
	t.Parallel()

	_, srv := newUpstream(t, http.StatusOK, `{"code":200}`)
	c := NewClient(srv.Client(), nil)

	_, err := Post(context.Background(), c, Request{URL: srv.URL, Body: map[string]string{"a": "b"}, Kind: KindMultipart}, Raw())
	if !errors.Is(err, ErrUnsupportedBody) {
		t.Errorf("Post() error = %v, want ErrUnsupportedBody", err)
	}
}

func TestDo_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantEmpty   bool
		wantCode    int
		wantStatus  int
		wantMessage string
	}{
		{name: "empty body", status: http.StatusOK, body: "", wantEmpty: true},
		{name: "null body", status: http.StatusOK, body: " null ", wantEmpty: true},
		{name: "failure code", status: http.StatusOK, body: `{"code":500,"message":"member not found","data":null}`, wantCode: 500, wantMessage: "member not found"},
		{name: "missing code", status: http.StatusOK, body: `{"message":"?"}`, wantCode: 0, wantMessage: "response envelope has no code"},
		{name: "http error with envelope", status: http.StatusBadRequest, body: `{"code":400,"message":"bad input"}`, wantStatus: 400, wantMessage: "bad input"},
		{name: "http error without envelope", status: http.StatusBadGateway, body: `<html>`, wantStatus: 502},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, srv := newUpstream(t, tt.status, tt.body)
			c := NewClient(srv.Client(), nil)

			_, err := c.Do(context.Background(), http.MethodGet, Request{URL: srv.URL})
			if err == nil {
				t.Fatal("Do() error = nil")
			}
			switch {
			case tt.wantEmpty:
				if !errors.Is(err, ErrEmptyResponse) {
					t.Errorf("error = %v, want ErrEmptyResponse", err)
				}
			case tt.wantStatus != 0:
				var statusErr *StatusError
				if !errors.As(err, &statusErr) {
					t.Fatalf("error = %v, want *StatusError", err)
				}
				if statusErr.StatusCode != tt.wantStatus || statusErr.Message != tt.wantMessage {
					t.Errorf("StatusError = %+v, want status %d message %q", statusErr, tt.wantStatus, tt.wantMessage)
				}
			default:
				var envErr *EnvelopeError
				if !errors.As(err, &envErr) {
					t.Fatalf("error = %v, want *EnvelopeError", err)
				}
				if envErr.Code != tt.wantCode || envErr.Message != tt.wantMessage {
					t.Errorf("EnvelopeError = %+v, want code %d message %q", envErr, tt.wantCode, tt.wantMessage)
				}
				if msg, ok := UpstreamMessage(err); !ok || msg != tt.wantMessage {
					t.Errorf("UpstreamMessage() = %q, %v", msg, ok)
				}
			}
		})
	}
}

func TestDo_NoRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), nil)
	if _, err := c.Do(context.Background(), http.MethodPost, Request{URL: srv.URL}); err == nil {
		t.Fatal("Do() error = nil")
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
}

func TestDo_InvalidRequest(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, nil)
	tests := []Request{
		{URL: ""},
		{URL: "not a url"},
		{URL: "http://example.com", Kind: "xml"},
	}
	for _, req := range tests {
		if _, err := c.Do(context.Background(), http.MethodGet, req); err == nil {
			t.Errorf("Do(%+v) error = nil, want validation error", req)
		}
	}
}
