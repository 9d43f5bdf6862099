package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/relay"
	"github.com/spf13/cobra"
)

type relayFlags struct {
	url     string
	token   string
	params  []string
	timeout time.Duration
	verbose bool
}

func (f *relayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Upstream URL (required)")
	cmd.Flags().StringVar(&f.token, "token", relay.NoToken, "Bearer token; NoToken sends no Authorization header")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", relay.DefaultTimeout, "Request timeout")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Log relay failures to stderr")
	_ = cmd.MarkFlagRequired("url")
}

func (f *relayFlags) request() (relay.Request, error) {
	params, err := parsePairs(f.params)
	if err != nil {
		return relay.Request{}, fmt.Errorf("--param: %w", err)
	}
	return relay.Request{URL: f.url, Params: url.Values(params), Token: f.token}, nil
}

func (f *relayFlags) client() (*relay.Client, error) {
	if !f.verbose {
		return relay.NewClient(&http.Client{Timeout: f.timeout}, nil), nil
	}
	log, err := logger.NewDevelopmentLogger(true)
	if err != nil {
		return nil, err
	}
	return relay.NewClient(&http.Client{Timeout: f.timeout}, log), nil
}

// NewRelayCmd creates the relay command for calling envelope-speaking
// upstream services.
func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Call an upstream service through the relay client",
		Long: "Send a GET or POST to an upstream service that answers with a {code, message, data} envelope " +
			"and print the unwrapped data.",
	}
	cmd.AddCommand(newRelayGetCmd())
	cmd.AddCommand(newRelayPostCmd())
	return cmd
}

func newRelayGetCmd() *cobra.Command {
	var f relayFlags
	cmd := &cobra.Command{
		Use:   "get",
		Short: "GET an upstream resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			c, err := f.client()
			if err != nil {
				return err
			}
			data, err := relay.Get(cmd.Context(), c, req, relay.Raw())
			if err != nil {
				return describeRelayError(err)
			}
			return printData(cmd.OutOrStdout(), data)
		},
	}
	f.register(cmd)
	return cmd
}

func newRelayPostCmd() *cobra.Command {
	var f relayFlags
	var kind, data string
	var fields, files []string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "POST a JSON or multipart body to an upstream service",
		Example: `  configure relay post --url https://api.example.com/users --data '{"name":"kim"}'
  configure relay post --url https://api.example.com/upload --kind multipart --field title=report --file upload=./r.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			req.Kind = relay.ContentKind(kind)

			switch req.Kind {
			case relay.KindMultipart:
				if data != "" {
					return errors.New("--data cannot be used with --kind multipart")
				}
				body, closeFiles, err := multipartBody(fields, files)
				if err != nil {
					return err
				}
				defer closeFiles()
				req.Body = body
			default:
				if len(fields) > 0 || len(files) > 0 {
					return errors.New("--field and --file require --kind multipart")
				}
				if data != "" {
					if !json.Valid([]byte(data)) {
						return errors.New("--data is not valid JSON")
					}
					req.Body = json.RawMessage(data)
				}
			}

			c, err := f.client()
			if err != nil {
				return err
			}
			out, err := relay.Post(cmd.Context(), c, req, relay.Raw())
			if err != nil {
				return describeRelayError(err)
			}
			return printData(cmd.OutOrStdout(), out)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(relay.KindJSON), "Body encoding: json or multipart")
	cmd.Flags().StringVar(&data, "data", "", "JSON body")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Multipart form field as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Multipart file as field=path (repeatable)")
	return cmd
}

// parsePairs parses key=value arguments, keeping repeated keys.
func parsePairs(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", p)
		}
		out[k] = append(out[k], v)
	}
	return out, nil
}

func multipartBody(fields, files []string) (relay.Multipart, func(), error) {
	formFields, err := parsePairs(fields)
	if err != nil {
		return relay.Multipart{}, nil, fmt.Errorf("--field: %w", err)
	}
	filePaths, err := parsePairs(files)
	if err != nil {
		return relay.Multipart{}, nil, fmt.Errorf("--file: %w", err)
	}

	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	body := relay.Multipart{Fields: formFields}
	for field, paths := range filePaths {
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				closeAll()
				return relay.Multipart{}, nil, fmt.Errorf("open %s: %w", path, err)
			}
			opened = append(opened, f)
			body.Files = append(body.Files, relay.File{Field: field, Filename: filepath.Base(path), Content: f})
		}
	}
	return body, closeAll, nil
}

func describeRelayError(err error) error {
	if _, ok := relay.UpstreamMessage(err); ok {
		return fmt.Errorf("upstream refused the request: %w", err)
	}
	return err
}

func printData(w io.Writer, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, buf.String())
	return err
}
