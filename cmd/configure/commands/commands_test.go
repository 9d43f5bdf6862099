package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benvon/process-rest/internal/config"
	"github.com/benvon/process-rest/internal/middleware"
	"github.com/benvon/process-rest/internal/models"
	"github.com/spf13/cobra"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCorsCheck(t *testing.T) {
	t.Setenv("APP_PROFILE", "real")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CORS_ALLOW_DOMAINS", "example.com")

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "authorized preflight",
			args: []string{"check", "--origin", "https://app.example.com", "--method", "OPTIONS", "--request-method", "put"},
			want: []string{
				"Policy source: environment",
				"Normalized domain: app.example.com",
				"Result: AUTHORIZED",
				"Access-Control-Allow-Methods: PUT",
				"Access-Control-Max-Age: 3600",
			},
		},
		{
			name:    "denied origin",
			args:    []string{"check", "--origin", "https://evil.org"},
			want:    []string{"Result: DENIED"},
			notWant: []string{"Access-Control-Allow-Origin"},
		},
		{
			name: "absent origin in production profile",
			args: []string{"check"},
			want: []string{"Normalized domain: null", "Result: DENIED"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, NewCorsCmd(), tt.args...)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output contains %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestCorsList_WarnsAboutRiskyEntries(t *testing.T) {
	t.Setenv("APP_PROFILE", "local")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CORS_ALLOW_DOMAINS", "com,.example.com")

	out, err := run(t, NewCorsCmd(), "list")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, w := range []string{"Allow domains: com, .example.com", "Relaxed mode: true", "warning [public_suffix]"} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestCorsSet_RequiresDomains(t *testing.T) {
	if _, err := run(t, NewCorsCmd(), "set", "--domains", " , "); err == nil {
		t.Error("Execute() error = nil, want missing --domains error")
	}
}

func TestParsePairs(t *testing.T) {
	t.Parallel()

	got, err := parsePairs([]string{"a=1", "b=", "a=2", "c=x=y"})
	if err != nil {
		t.Fatalf("parsePairs() error = %v", err)
	}
	if strings.Join(got["a"], ",") != "1,2" || len(got["b"]) != 1 || got["b"][0] != "" || got["c"][0] != "x=y" {
		t.Errorf("parsePairs() = %v", got)
	}
	for _, bad := range []string{"novalue", "=1"} {
		if _, err := parsePairs([]string{bad}); err == nil {
			t.Errorf("parsePairs(%q) error = nil", bad)
		}
	}
}

func TestRelayGet(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"code":200,"data":{"id":3}}`)
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, NewRelayCmd(), "get", "--url", srv.URL, "--param", "q=cors", "--token", "abc")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, `"id": 3`) {
		t.Errorf("output = %q, want indented data", out)
	}
	if gotQuery != "q=cors" || gotAuth != "Bearer abc" {
		t.Errorf("query = %q, auth = %q", gotQuery, gotAuth)
	}
}

func TestRelayPost(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(file, []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantCT  string
		wantErr string
	}{
		{name: "json", args: []string{"--data", `{"a":1}`}, wantCT: "application/json"},
		{name: "multipart", args: []string{"--kind", "multipart", "--field", "t=x", "--file", "up=" + file}, wantCT: "multipart/form-data"},
		{name: "invalid json", args: []string{"--data", "{"}, wantErr: "not valid JSON"},
		{name: "fields without multipart", args: []string{"--field", "t=x"}, wantErr: "require --kind multipart"},
		{name: "missing file", args: []string{"--kind", "multipart", "--file", "up=" + filepath.Join(dir, "nope")}, wantErr: "open"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotCT string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCT = r.Header.Get("Content-Type")
				_, _ = io.WriteString(w, `{"code":200,"data":"ok"}`)
			}))
			t.Cleanup(srv.Close)

			args := append([]string{"post", "--url", srv.URL}, tt.args...)
			out, err := run(t, NewRelayCmd(), args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Execute() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !strings.HasPrefix(gotCT, tt.wantCT) {
				t.Errorf("Content-Type = %q, want %s", gotCT, tt.wantCT)
			}
			if strings.TrimSpace(out) != `"ok"` {
				t.Errorf("output = %q", out)
			}
		})
	}
}

func TestRelay_UpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":404,"message":"member not found"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := run(t, NewRelayCmd(), "get", "--url", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "member not found") {
		t.Errorf("Execute() error = %v, want upstream message", err)
	}
}

func TestCorsSet_RejectsInvalidEntries(t *testing.T) {
	tests := [][]string{
		{"set", "--domains", "https://example.com"},
		{"set", "--domains", "example.com:8080"},
		{"set", "--domains", "example.com", "--private-prefixes", "10.x"},
	}
	for _, args := range tests {
		if _, err := run(t, NewCorsCmd(), args...); err == nil {
			t.Errorf("Execute(%v) error = nil, want validation error", args)
		}
	}
}

type stubSource struct {
	cfg *models.CorsConfig
	err error
}

func (s stubSource) Get(ctx context.Context) (*models.CorsConfig, error) { return s.cfg, s.err }

func TestEffectivePolicy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Profile: "real", AllowDomains: []string{"env.com"}}
	tests := []struct {
		name        string
		source      middleware.CorsConfigSource
		wantFrom    middleware.PolicySource
		wantDomains string
		wantWarning bool
	}{
		{"no database", nil, middleware.PolicyFromEnvironment, "env.com", false},
		{"stored row", stubSource{cfg: &models.CorsConfig{AllowDomains: []string{"db.com"}}}, middleware.PolicyFromDatabase, "db.com", false},
		{"database unreachable", stubSource{err: errors.New("connection refused")}, middleware.PolicyFromEnvironment, "env.com", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var warn bytes.Buffer
			p, from := effectivePolicy(context.Background(), cfg, tt.source, &warn)
			if from != tt.wantFrom {
				t.Errorf("source = %q, want %q", from, tt.wantFrom)
			}
			if got := strings.Join(p.AllowDomains(), ","); got != tt.wantDomains {
				t.Errorf("AllowDomains() = %q, want %q", got, tt.wantDomains)
			}
			gotWarning := strings.Contains(warn.String(), "connection refused")
			if gotWarning != tt.wantWarning {
				t.Errorf("warning output = %q, want warning %v", warn.String(), tt.wantWarning)
			}
		})
	}
}
