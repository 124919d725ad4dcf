package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onboardline/internal/app"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/engine"
	"onboardline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Onboardline CLI",
	Long: `Onboardline runs candidate onboarding cases.
- Case: one candidate's onboarding, created by HR and unlocked with an application code.
- Wizard: seven steps (welcome, offer, identity, documents, workAuth, profile, review)
  the candidate walks through; each save emits a live feed event.
- Status: DRAFT -> SUBMITTED_FOR_HR_REVIEW -> ONBOARDING_IN_PROGRESS -> READY_FOR_DAY1
  -> ONBOARDING_COMPLETE, with ON_HOLD_HR for offer concerns and DECLINED as an exit.
- Orchestrator: the agents that plan compliance and logistics once HR accepts a case.
- Feed: the per-case event stream, follow it with 'ol feed tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ONBOARDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded on changes")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(stockCmd())
	rootCmd.AddCommand(emailCmd())
	rootCmd.AddCommand(hrCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Config: cfg})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(ctx); err != nil {
				return err
			}
			if err := server.StartWebhooks(ctx, a.PubSub, cfg.Webhooks, a.Log); err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: cfg.Server.BasePath,
				Log:      a.Log,
				Auth: server.AuthConfig{
					JWTSecret:              cfg.Auth.JWTSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
					CandidateTokenTTL:      cfg.Auth.CandidateTokenTTL,
				},
			})
			if err != nil {
				return err
			}
			// No WriteTimeout: feed streams stay open.
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			a.Log.Info("server", "listening", map[string]any{"addr": cfg.Server.Addr, "base_path": cfg.Server.BasePath})
			fmt.Printf("Serving Onboardline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides server.base_path)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			redacted := *c
			if redacted.Auth.JWTSecret != "" {
				redacted.Auth.JWTSecret = "***"
			}
			if redacted.Mail.SMTP.Password != "" {
				redacted.Mail.SMTP.Password = "***"
			}
			return printJSON(redacted)
		},
	})
	var serve bool
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate onboardline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			if serve {
				err = c.ValidateServe()
			} else {
				err = c.Validate()
			}
			if err != nil {
				return err
			}
			fmt.Println("config ok:", config.Path(viper.GetString("workspace")))
			return nil
		},
	}
	validate.Flags().BoolVar(&serve, "serve", false, "also check settings required to serve")
	cfg.AddCommand(validate)
	return cfg
}

// --- helpers ---

// envOverrides maps ONBOARDLINE_* variables onto config fields.
var envOverrides = map[string]func(*config.Config, string){
	"jwt-secret":  func(c *config.Config, v string) { c.Auth.JWTSecret = v },
	"redis-url":   func(c *config.Config, v string) { c.Redis.URL = v },
	"addr":        func(c *config.Config, v string) { c.Server.Addr = v },
	"log-level":   func(c *config.Config, v string) { c.Log.Level = v },
	"mail-mode":   func(c *config.Config, v string) { c.Mail.Mode = v },
	"smtp-host":   func(c *config.Config, v string) { c.Mail.SMTP.Host = v },
	"smtp-pass":   func(c *config.Config, v string) { c.Mail.SMTP.Password = v },
	"it-email":    func(c *config.Config, v string) { c.Mail.ITDefaultEmail = v },
	"outbox-path": func(c *config.Config, v string) { c.Mail.OutboxPath = v },
}

// loadConfig reads the workspace config and layers environment overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	for key, apply := range envOverrides {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			apply(cfg, v)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withEngine opens the workspace quietly and runs fn against its engine.
// Commands exit right away, so mail and orchestration run inline.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Mail.Async = false
	cfg.Orchestrator.AsyncWorkers = 0
	a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace"), Config: cfg, Quiet: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") || header == nil {
		return printJSON(v)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parsePayload reads a JSON object from an inline string or @file.
func parsePayload(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func optionalString(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
