package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"retentionline/internal/app"
	"retentionline/internal/config"
	"retentionline/internal/db"
	"retentionline/internal/engine"
	"retentionline/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rl",
		Short: "Retentionline CLI",
		Long: `Retentionline tracks students at risk of leaving and the work done to keep them.
- Alert: one churn risk for one student; pending until retained, churned or resolved.
- Activity: a remediation task on an alert (engagement, financial contact or
  negotiation, churn intent, pedagogical attendance, retention) routed to the
  reporting staff member, the class teacher or a department.
- Board: every alert has a card in todo, doing, scheduled, done or hibernating;
  finalizing a card locks its result for the statistics.
- Event log: every change, view with 'rl log tail'.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnv()
			return nil
		},
	}
	addPersistentFlags(root)
	root.AddCommand(initCmd())
	root.AddCommand(alertCmd())
	root.AddCommand(activityCmd())
	root.AddCommand(negotiationCmd())
	root.AddCommand(boardCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(staffCmd())
	root.AddCommand(logCmd())
	root.AddCommand(authCmd())
	root.AddCommand(serveCmd())
	return root
}

// loadEnv reads <workspace>/.env without overriding the environment, then
// lets viper see RETENTIONLINE_* variables.
func loadEnv() {
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}
	viper.SetEnvPrefix("RETENTIONLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "staff id performing the action")
	flags.String("actor-name", "", "staff display name")
	flags.String("unit", "", "unit id (overrides retentionline.yml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	for _, name := range []string{"workspace", "json", "actor-id", "actor-name", "unit", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func initCmd() *cobra.Command {
	var unitID, name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create retentionline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if unitID == "" {
				return fmt.Errorf("--unit required")
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			body := config.GenerateDefault(unitID)
			if name != "" {
				body = strings.Replace(body, `name: ""`, fmt.Sprintf("name: %q", name), 1)
			}
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				unit, err := e.Repo.GetUnit(ctx, e.UnitID)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmd.OutOrStdout(), unit)
			})
		},
	}
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id")
	cmd.Flags().StringVar(&name, "name", "", "unit display name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every alert, activity and card change, oldest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := tailEvents(ctx, e, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if viper.GetBool("json") {
					return printJSON(out, items)
				}
				tw := newTable(out)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind: alert, activity, card")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "API credentials"}
	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the current actor (needs RETENTIONLINE_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := currentActor()
			if actor.ID == "" {
				return fmt.Errorf("--actor-id required")
			}
			signed, err := server.SignToken(viper.GetString("jwt-secret"), actor.ID, actor.Name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	auth.AddCommand(token)
	return auth
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeaders, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              viper.GetString("jwt-secret"),
				AllowLegacyActorHeader: legacyHeaders,
				DevLogin:               devLogin,
				Logger:                 rt.Logger,
			}
			if authCfg.JWTSecret == "" && !legacyHeaders {
				return fmt.Errorf("RETENTIONLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			rt.Logger.Info("serving retentionline api", "addr", addr, "base_path", basePath, "unit_id", rt.Engine.UnitID)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&legacyHeaders, "allow-legacy-actor-header", false, "accept X-Actor-Id without credentials (development only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (development only)")
	return cmd
}

// --- helpers ---

func openRuntime(ctx context.Context) (*app.Runtime, error) {
	return app.Open(ctx, app.Options{
		Workspace:    viper.GetString("workspace"),
		UnitOverride: viper.GetString("unit"),
		LogLevel:     viper.GetString("log-level"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func currentActor() engine.Actor {
	return engine.Actor{ID: viper.GetString("actor-id"), Name: viper.GetString("actor-name")}
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSONOrTable(w io.Writer, v any) error {
	return printJSON(w, v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
