package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/jszwec/csvutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"routeline/internal/app"
	"routeline/internal/compile"
	"routeline/internal/config"
	"routeline/internal/db"
	"routeline/internal/domain"
	"routeline/internal/geo"
	"routeline/internal/importer"
	"routeline/internal/migrate"
	"routeline/internal/repo"
	"routeline/internal/runner"
	"routeline/internal/schema"
	"routeline/internal/server"
	tbl "routeline/internal/table"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Routeline CLI",
	Long: `Routeline turns spreadsheets into vehicle routing optimizations.
The pipeline: import tabular data per entity (job, vehicle, shipment),
map columns to schema fields, validate cells, compile the request with
deduplicated locations, then submit to the solver and persist the result.
Workspace state lives under .routeline; config in routeline.yml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ROUTELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(mapCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(resultsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace configuration",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default routeline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func mapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Manage column-to-field mappings",
	}
	cmd.AddCommand(mapShowCmd())
	cmd.AddCommand(mapSetCmd())
	cmd.AddCommand(mapClearCmd())
	cmd.AddCommand(mapAgeCmd())
	return cmd
}

func parseEntity(arg string) (domain.EntityType, error) {
	e := domain.EntityType(arg)
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity %q (want job, vehicle or shipment)", arg)
	}
	return e, nil
}

func mapShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity>",
		Short: "Show the stored mapping for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				env, err := r.LoadMapping(ctx, entity)
				if err != nil {
					return err
				}
				if env == nil {
					fmt.Println("no mapping stored for", entity)
					return nil
				}
				return printJSONOrTable(env)
			})
		},
	}
}

func mapSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <entity> <column> <field>",
		Short: "Bind a column index to a schema field",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			col, err := strconv.Atoi(args[1])
			if err != nil || col < 0 {
				return fmt.Errorf("column must be a non-negative integer, got %q", args[1])
			}
			field := args[2]
			if _, ok := schema.CatalogFor(entity).Lookup()[field]; !ok {
				return fmt.Errorf("unknown %s field %q", entity, field)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cfg := a.Store.MapConfig(entity)
				replaced := false
				for i, m := range cfg.DataMappings {
					if m.Index == col {
						cfg.DataMappings[i].Value = field
						replaced = true
					}
				}
				if !replaced {
					cfg.DataMappings = append(cfg.DataMappings, domain.DataMapping{Index: col, Value: field})
				}
				if err := a.Store.SetMapConfig(ctx, entity, cfg); err != nil {
					return err
				}
				return printJSONOrTable(a.Store.MapConfig(entity))
			})
		},
	}
}

func mapClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <entity>",
		Short: "Remove the stored mapping for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Store.ResetMapping(ctx, entity)
			})
		},
	}
}

func mapAgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "age <entity>",
		Short: "Show how many days old the stored mapping is",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				days, err := r.MappingAgeInDays(ctx, entity)
				if errors.Is(err, repo.ErrNotFound) {
					fmt.Println("no mapping stored for", entity)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s mapping saved %d day(s) ago\n", entity, days)
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	var entityArg string
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a CSV file against the stored mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(entityArg)
			if err != nil {
				return err
			}
			raw, err := readCSV(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				env, err := r.LoadMapping(ctx, entity)
				if err != nil {
					return err
				}
				if env == nil {
					return fmt.Errorf("no mapping stored for %s; map columns first", entity)
				}
				errs := tbl.CheckTable(entity, raw, env.MapConfig)
				if len(errs) == 0 {
					fmt.Printf("%s: %d rows, no errors\n", args[0], len(raw.Rows))
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(errs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Row", "Column", "Message"})
				for _, e := range errs {
					tw.AppendRow(table.Row{e.RowIndex + 1, e.ColumnIndex, e.Message})
				}
				tw.Render()
				return fmt.Errorf("%d validation error(s)", len(errs))
			})
		},
	}
	cmd.Flags().StringVar(&entityArg, "entity", "job", "entity type (job, vehicle, shipment)")
	return cmd
}

func runCmd() *cobra.Command {
	var jobsFile, vehiclesFile, shipmentsFile, apiKey string
	var dryRun, verbose bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile the tables and submit an optimization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				files := map[domain.EntityType]string{
					domain.EntityJob:      jobsFile,
					domain.EntityVehicle:  vehiclesFile,
					domain.EntityShipment: shipmentsFile,
				}
				for entity, path := range files {
					if path == "" {
						continue
					}
					raw, err := readCSV(path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if err := a.Store.SetRawData(entity, raw); err != nil {
						return err
					}
				}
				if dryRun {
					req, err := compile.Build(compile.Input{
						Jobs:      entityState(a.Store, domain.EntityJob),
						Vehicles:  entityState(a.Store, domain.EntityVehicle),
						Shipments: entityState(a.Store, domain.EntityShipment),
					})
					if err != nil {
						return err
					}
					if verbose {
						spew.Dump(req)
						return nil
					}
					return printJSON(req)
				}
				key := apiKey
				if key == "" {
					key = a.Config.Solver.APIKey
				}
				jobID, err := a.Runner.Run(ctx, key)
				if err != nil {
					return err
				}
				fmt.Println("completed job", jobID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobsFile, "jobs", "", "jobs CSV file")
	cmd.Flags().StringVar(&vehiclesFile, "vehicles", "", "vehicles CSV file")
	cmd.Flags().StringVar(&shipmentsFile, "shipments", "", "shipments CSV file")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "solver API key (defaults to config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the compiled request instead of submitting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump the compiled request with full type detail")
	return cmd
}

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Manage stored optimization results",
	}
	cmd.AddCommand(resultsListCmd())
	cmd.AddCommand(resultsShowCmd())
	cmd.AddCommand(resultsTitleCmd())
	cmd.AddCommand(resultsDeleteCmd())
	cmd.AddCommand(resultsShareCmd())
	cmd.AddCommand(resultsExportCmd())
	cmd.AddCommand(resultsStatsCmd())
	return cmd
}

func resultsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				results, err := r.ListResults(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Title", "Status", "Time (s)", "Created"})
				for _, res := range results {
					tw.AppendRow(table.Row{res.ID, res.JobID, res.Title, res.Status, res.SolutionTime, res.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of results")
	return cmd
}

func resultsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one result including the solver response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				res, err := r.GetResultByJobID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func resultsTitleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "title <id> <title>",
		Short: "Rename a result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[1])
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.UpdateResultTitle(ctx, args[0], title)
			})
		},
	}
}

func resultsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteResult(ctx, args[0])
			})
		},
	}
}

func resultsShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <id>",
		Short: "Publish a shareable copy of a result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				res, err := a.Repo.GetResult(ctx, args[0])
				if err != nil {
					return err
				}
				shared, err := a.Solver.CreateShared(ctx, res.JobID)
				if err != nil {
					return err
				}
				if shared.ID == "" {
					return fmt.Errorf("solver returned no shared id")
				}
				sharedURL := "shared/" + shared.ID
				if err := a.Repo.SetResultSharedURL(ctx, res.ID, sharedURL); err != nil {
					return err
				}
				fmt.Println(sharedURL)
				return nil
			})
		},
	}
}

// resultExportRow is the flattened CSV shape of one result.
type resultExportRow struct {
	ID           string  `csv:"id"`
	JobID        string  `csv:"job_id"`
	Title        string  `csv:"title"`
	Status       string  `csv:"status"`
	SolutionTime float64 `csv:"solution_time"`
	SharedURL    string  `csv:"shared_url"`
	CreatedAt    string  `csv:"created_at"`
}

func resultsExportCmd() *cobra.Command {
	var out string
	var limit int
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export results as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				results, err := r.ListResults(ctx, limit)
				if err != nil {
					return err
				}
				rows := make([]resultExportRow, 0, len(results))
				for _, res := range results {
					row := resultExportRow{
						ID:           res.ID,
						JobID:        res.JobID,
						Title:        res.Title,
						Status:       res.Status,
						SolutionTime: res.SolutionTime,
						CreatedAt:    res.CreatedAt,
					}
					if res.SharedURL != nil {
						row.SharedURL = *res.SharedURL
					}
					rows = append(rows, row)
				}
				data, err := csvutil.Marshal(rows)
				if err != nil {
					return err
				}
				if out == "" {
					_, err = os.Stdout.Write(data)
					return err
				}
				return os.WriteFile(out, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 = all stored, capped)")
	return cmd
}

func resultsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals over all stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				agg := &runner.StatsAggregator{Repo: r}
				stats, err := agg.Refresh(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				jwtSecret := a.Config.Server.JWTSecret
				if s := os.Getenv("ROUTELINE_JWT_SECRET"); s != "" {
					jwtSecret = s
				}
				if jwtSecret == "" {
					return fmt.Errorf("set server.jwt_secret in routeline.yml or ROUTELINE_JWT_SECRET for bearer auth")
				}
				listen := addr
				if listen == "" {
					listen = a.Config.Server.Listen
				}
				if listen == "" {
					listen = "127.0.0.1:8080"
				}
				handler, err := server.New(server.Config{
					Store:        a.Store,
					Repo:         a.Repo,
					Runner:       a.Runner,
					Solver:       a.Solver,
					Stats:        &runner.StatsAggregator{Repo: a.Repo},
					SolverAPIKey: a.Config.Solver.APIKey,
					BasePath:     basePath,
					Auth:         server.AuthConfig{JWTSecret: jwtSecret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: listen, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Routeline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", listen, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP server",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the key is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rawKey := "rl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(rawKey),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Println("id: ", key.ID)
				fmt.Println("key:", rawKey)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "local-user", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "human-readable key name")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func readCSV(path string) (domain.RawTable, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return domain.RawTable{}, err
	}
	reader := importer.CSVReader{}
	if cfg.Import.Delimiter != "" {
		reader.Comma = []rune(cfg.Import.Delimiter)[0]
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.RawTable{}, err
	}
	defer f.Close()
	return reader.Read(f)
}

func entityState(s *tbl.Store, entity domain.EntityType) geo.EntityState {
	return geo.EntityState{
		Raw:      s.RawData(entity),
		Config:   s.MapConfig(entity),
		Selected: s.Selection(entity),
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
