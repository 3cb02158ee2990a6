// Command sample runs a small widgets service built on apikit.
//
// Run:
//
//	go run ./cmd/sample serve
//	go run ./cmd/sample serve --config sample.yaml --addr :9090
//
// Print the OpenAPI document:
//
//	go run ./cmd/sample openapi
//	go run ./cmd/sample openapi --format yaml -o openapi.yaml
//
// Then explore:
//
//	GET    http://localhost:8080/docs                       interactive docs
//	GET    http://localhost:8080/openapi.json               OpenAPI document
//	GET    http://localhost:8080/v1/health                  health check
//	GET    http://localhost:8080/v1/widgets                 list widgets
//	POST   http://localhost:8080/v1/widgets                 create widget
//	GET    http://localhost:8080/v1/widgets/{id}            get widget
//	PUT    http://localhost:8080/v1/widgets/{id}            replace widget
//	DELETE http://localhost:8080/v1/widgets/{id}            delete widget
//	GET    http://localhost:8080/v1/widgets/{id}/files/a/b  download a file
//	GET    http://localhost:8080/v1/events                  SSE tick stream
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/bjaus/apikit"
)

var version = "dev"

// Globals are the flags shared by every command.
type Globals struct {
	Config string `short:"c" help:"Path to a YAML config file." default:"${config_file}" type:"path"`
	Debug  bool   `short:"d" help:"Enable debug logging."`
}

// ServeCmd runs the HTTP server.
type ServeCmd struct {
	Addr      string   `help:"Listen address. Overrides the config file."`
	BodyLimit ByteSize `help:"Request body limit, e.g. 1MiB. Overrides the config file."`
}

// OpenAPICmd writes the OpenAPI document and exits.
type OpenAPICmd struct {
	Format string `help:"Output format." enum:"json,yaml" default:"json"`
	Output string `short:"o" help:"Write to this file instead of stdout." type:"path"`
}

type cli struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Print version and exit."`
	Serve   ServeCmd         `cmd:"" default:"1" help:"Start the widgets server."`
	OpenAPI OpenAPICmd       `cmd:"" name:"openapi" help:"Print the OpenAPI document."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("sample"),
		kong.Description("A widgets service demonstrating apikit."),
		kong.Vars{
			"version":     version,
			"config_file": "sample.yaml",
		},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	kctx.FatalIfErrorf(kctx.Run(&c.Globals))
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (s *ServeCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Addr = s.Addr
	}
	if s.BodyLimit != 0 {
		cfg.BodyLimit = s.BodyLimit
	}

	level, err := cfg.level()
	if err != nil {
		return err
	}
	if g.Debug {
		level = slog.LevelDebug
	}
	log := newLogger(os.Stderr, level)

	reg, err := newRegistry(newWidgetAPI())
	if err != nil {
		return err
	}

	opts := []apikit.ServerOption{
		apikit.WithLogger(log),
		apikit.WithRequestBodyLimit(int64(cfg.BodyLimit)), //nolint:gosec // sizes fit in int64
		apikit.Use(apikit.Logger(log)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, apikit.Use(apikit.Timeout(cfg.Timeout)))
	}
	if cfg.RateLimit.Rate > 0 {
		opts = append(opts, apikit.Use(apikit.RateLimit(apikit.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		})))
	}
	if cfg.TrustRequestID {
		opts = append(opts, apikit.WithTrustRequestID())
	}
	if cfg.StrictRequests {
		opts = append(opts, apikit.WithStrictRequests())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server",
		"addr", cfg.Addr,
		"version", version,
		"body_limit", cfg.BodyLimit.String(),
		"endpoints", len(reg.Endpoints()),
	)

	err = apikit.NewServer(reg, opts...).ListenAndServe(ctx, cfg.Addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// Run writes the document to stdout or the output file.
func (o *OpenAPICmd) Run() error {
	reg, err := newRegistry(newWidgetAPI())
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if o.Output != "" {
		f, err := os.Create(o.Output)
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck // closed again below on the success path
		w = f
	}

	doc := reg.Document()
	if o.Format == "yaml" {
		err = doc.WriteYAML(w)
	} else {
		err = doc.WriteJSON(w)
	}
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if f, ok := w.(*os.File); ok && f != os.Stdout {
		return f.Close()
	}
	return nil
}

func newRegistry(w *widgetAPI) (*apikit.Registry, error) {
	api := apikit.New(
		apikit.WithTitle("Widgets API"),
		apikit.WithVersion(version),
		apikit.WithAPIDescription("A sample service built with apikit."),
		apikit.WithServerURL("http://localhost:8080", "local"),
		apikit.WithTagDescription("widgets", "Widget management"),
		apikit.WithTagDescription("ops", "Operational endpoints"),
	)

	if err := w.register(api); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	return api.Registry()
}
