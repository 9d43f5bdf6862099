package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/benvon/process-rest/internal/config"
	"github.com/benvon/process-rest/internal/cors"
	"github.com/benvon/process-rest/internal/database"
	"github.com/benvon/process-rest/internal/handlers"
	"github.com/benvon/process-rest/internal/middleware"
	"github.com/benvon/process-rest/internal/models"
	"github.com/benvon/process-rest/internal/notify"
	"github.com/benvon/process-rest/internal/validation"
	"github.com/spf13/cobra"
)

// NewCorsCmd creates the cors configuration command with list, set and check subcommands.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS configuration",
		Long:  "Inspect, update or dry-run the CORS policy (allow-domain suffixes, private-network prefixes, preflight max age).",
	}
	cmd.AddCommand(newCorsListCmd())
	cmd.AddCommand(newCorsSetCmd())
	cmd.AddCommand(newCorsCheckCmd())
	return cmd
}

func openRepo() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return cfg, nil, nil
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, db, nil
}

// configSource returns the stored configuration source, or nil without a database.
func configSource(db *database.DB) middleware.CorsConfigSource {
	if db == nil {
		return nil
	}
	return database.NewCorsConfigRepository(db)
}

// effectivePolicy builds the policy the server would serve right now. Like
// the server, it falls back to the environment when the source cannot be
// read, and says so on warn.
func effectivePolicy(ctx context.Context, cfg *config.Config, source middleware.CorsConfigSource, warn io.Writer) (*cors.Policy, middleware.PolicySource) {
	r := middleware.NewCORSReloader(source, cfg.CORSOptions(), nil, 0)
	p := r.Reload(ctx)
	from, err := r.Status()
	if err != nil {
		fmt.Fprintf(warn, "warning: stored CORS configuration unavailable, using environment: %v\n", err)
	}
	return p, from
}

func printPolicy(w io.Writer, p *cors.Policy, from middleware.PolicySource) {
	view := handlers.NewCORSPolicyView(p)
	fmt.Fprintf(w, "CORS configuration (source: %s):\n", from)
	fmt.Fprintf(w, "  Allow domains: %s\n", strings.Join(view.AllowDomains, ", "))
	fmt.Fprintf(w, "  Relaxed mode: %v\n", view.Relaxed)
	fmt.Fprintf(w, "  Private prefixes: %s\n", strings.Join(view.PrivatePrefixes, ", "))
	fmt.Fprintf(w, "  Max-Age: %d\n", view.MaxAgeSeconds)
	printFindings(w, cors.LintAllowDomains(view.AllowDomains))
}

func printFindings(w io.Writer, findings []cors.Finding) {
	for _, f := range findings {
		fmt.Fprintf(w, "  warning [%s]: %s\n", f.Kind, f.Message)
	}
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openRepo()
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
			}
			p, from := effectivePolicy(cmd.Context(), cfg, configSource(db), cmd.ErrOrStderr())
			printPolicy(cmd.OutOrStdout(), p, from)
			return nil
		},
	}
}

func newCorsSetCmd() *cobra.Command {
	var domains, prefixes string
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store CORS configuration and notify running servers",
		Long: "Replace the stored allow-domain suffixes (comma-separated). Running servers pick the change up " +
			"immediately when REDIS_URL is configured, otherwise on their next reload tick.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &models.CorsConfig{
				AllowDomains:    database.SplitList(domains),
				PrivatePrefixes: database.SplitList(prefixes),
				MaxAge:          maxAge,
			}
			if len(c.AllowDomains) == 0 {
				return errors.New("--domains is required (comma-separated list)")
			}
			for _, d := range c.AllowDomains {
				if err := validation.ValidateDomainSuffix(d); err != nil {
					return err
				}
			}
			for _, p := range c.PrivatePrefixes {
				if err := validation.ValidateNetworkPrefix(p); err != nil {
					return err
				}
			}

			cfg, db, err := openRepo()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("DATABASE_URL is not set; nothing to store the configuration in")
			}
			defer func() { _ = db.Close() }()

			ctx := cmd.Context()
			if err := database.NewCorsConfigRepository(db).Set(ctx, c); err != nil {
				return fmt.Errorf("set cors config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "CORS configuration updated.")
			printFindings(out, cors.LintAllowDomains(c.AllowDomains))

			if cfg.RedisURL == "" {
				fmt.Fprintf(out, "REDIS_URL not set; servers reload within %s.\n", cfg.CORSReloadInterval)
				return nil
			}
			return publishReload(ctx, out, cfg)
		},
	}
	cmd.Flags().StringVar(&domains, "domains", "", "Comma-separated allow-domain suffixes (required)")
	cmd.Flags().StringVar(&prefixes, "private-prefixes", "", "Comma-separated private-network prefixes for relaxed mode (empty keeps the server default)")
	cmd.Flags().IntVar(&maxAge, "max-age", int(cors.DefaultMaxAge.Seconds()), "Access-Control-Max-Age (seconds)")
	return cmd
}

func publishReload(ctx context.Context, out io.Writer, cfg *config.Config) error {
	client, err := notify.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer func() { _ = client.Close() }()

	n, err := notify.NewPublisher(client, cfg.CORSReloadChannel).PublishReload(ctx, "configure")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reload published to %d server(s).\n", n)
	return nil
}

type corsCheckFlags struct {
	origin         string
	method         string
	requestMethod  string
	requestHeaders string
}

func newCorsCheckCmd() *cobra.Command {
	var f corsCheckFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Dry-run a request against the effective CORS policy",
		Example: `  configure cors check --origin https://app.example.com --method OPTIONS --request-method PUT
  configure cors check --method GET   # no Origin header`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openRepo()
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
			}
			p, from := effectivePolicy(cmd.Context(), cfg, configSource(db), cmd.ErrOrStderr())
			runCorsCheck(cmd, p, from, f)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.origin, "origin", "", "Origin header (omit to send none)")
	cmd.Flags().StringVar(&f.method, "method", "GET", "HTTP method of the request")
	cmd.Flags().StringVar(&f.requestMethod, "request-method", "", "Access-Control-Request-Method header")
	cmd.Flags().StringVar(&f.requestHeaders, "request-headers", "", "Access-Control-Request-Headers header")
	return cmd
}

func runCorsCheck(cmd *cobra.Command, p *cors.Policy, from middleware.PolicySource, f corsCheckFlags) {
	req := handlers.CORSEvaluateRequest{Method: f.method}
	if cmd.Flags().Changed("origin") {
		req.Origin = &f.origin
	}
	if cmd.Flags().Changed("request-method") {
		req.RequestMethod = &f.requestMethod
	}
	if cmd.Flags().Changed("request-headers") {
		req.RequestHeaders = &f.requestHeaders
	}
	resp := handlers.EvaluateCORS(p, req)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policy source: %s\n", from)
	fmt.Fprintf(out, "Normalized domain: %s\n", resp.NormalizedDomain)
	if !resp.Authorized {
		fmt.Fprintln(out, "Result: DENIED (no Access-Control-* headers)")
		return
	}
	fmt.Fprintln(out, "Result: AUTHORIZED")
	for _, name := range []string{
		cors.HeaderAllowOrigin,
		cors.HeaderAllowCredentials,
		cors.HeaderAllowMethods,
		cors.HeaderAllowHeaders,
		cors.HeaderMaxAge,
	} {
		if v, ok := resp.Headers[name]; ok {
			fmt.Fprintf(out, "  %s: %s\n", name, v)
		}
	}
}
