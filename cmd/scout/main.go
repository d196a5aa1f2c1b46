package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/scout-insights/internal/bot"
	"github.com/xaenox/scout-insights/internal/models"
	"github.com/xaenox/scout-insights/internal/server"
	"github.com/xaenox/scout-insights/internal/storage"
	"github.com/xaenox/scout-insights/pkg/config"
	"go.uber.org/zap"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scout",
	Short:   "Retail analytics insights for the sari-sari store dashboard",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, err = newLogger(cfg.Log, verbose)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")

	addFilterFlags(insightCmd)
	addFilterFlags(analyticsCmd)
	addFilterFlags(chatCmd)
	insightCmd.Flags().StringVarP(&insightModule, "module", "m", string(models.ModuleTrends), "Dashboard module")
	seedCmd.Flags().IntVar(&seedDays, "days", 90, "Days of demo history to generate")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(insightCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("scout", version)
	},
}

// --- filter flags ---

var filterFlags models.FilterContext

func addFilterFlags(cmd *cobra.Command) {
	def := models.DefaultFilters()
	f := cmd.Flags()
	f.StringVar((*string)(&filterFlags.DateRange), "date", string(def.DateRange), "Date range: last7days, last30days, last90days or custom")
	f.StringVar((*string)(&filterFlags.Geography), "geography", string(def.Geography), "Geography: all, ncr, luzon, visayas or mindanao")
	f.StringVar(&filterFlags.Brand, "brand", def.Brand, "Brand identifier or all")
	f.StringVar(&filterFlags.Category, "category", def.Category, "Category identifier or all")
	f.StringVar((*string)(&filterFlags.VibeContext), "vibe", string(def.VibeContext), "Vibe: tension, intent or equity")
	f.BoolVar(&filterFlags.CompareMode, "compare", def.CompareMode, "Include period comparison")
}

func filtersFromFlags() (models.FilterContext, error) {
	f := filterFlags.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// --- serve command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		handler := server.NewHandler(a.analytics, a.insights, a.chat, a.store, logger)
		router := server.NewRouter(server.RouterConfig{
			Handler:      handler,
			AllowOrigins: cfg.Server.AllowOrigins,
			Logger:       logger,
		})
		return server.Serve(ctx, cfg.Server.Addr, router, logger)
	},
}

// --- bot command ---

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Telegram.Token == "" {
			return errors.New("telegram token not set (telegram.token or TELEGRAM_TOKEN)")
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := bot.New(cfg.Telegram.Token, a.chat, a.insights, a.classifier, logger)
		if err != nil {
			return err
		}
		return b.Start(ctx)
	},
}

// --- insight command ---

var insightModule string

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Generate one insight for a dashboard module",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		insight, err := a.insights.Generate(ctx, models.InsightRequest{
			Filters:      filters,
			ActiveModule: models.Module(insightModule),
			VibeContext:  filters.VibeContext,
		})
		if err != nil {
			return err
		}
		return printJSON(insight)
	},
}

// --- analytics command ---

var analyticsCmd = &cobra.Command{
	Use:       "analytics [trends|products|behavior|geographic]",
	Short:     "Print one analytics view as JSON",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"trends", "products", "behavior", "geographic"},
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var view any
		switch args[0] {
		case "trends":
			view, err = a.analytics.Trends(ctx, filters)
		case "products":
			view, err = a.analytics.ProductMix(ctx, filters)
		case "behavior":
			view, err = a.analytics.ConsumerBehavior(ctx, filters)
		case "geographic":
			view, err = a.analytics.Geographic(ctx, filters)
		}
		if err != nil {
			return err
		}
		return printJSON(view)
	},
}

// --- chat command ---

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Ask the assistant one question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		reply, err := a.chat.SendMessage(ctx, args[0], filters, nil)
		if err != nil {
			return err
		}
		fmt.Println(reply.Content)
		fmt.Fprintf(os.Stderr, "\n(via %s)\n", reply.Provider)
		return nil
	},
}

// --- migrate command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		versioned, ok := store.(interface {
			SchemaVersion(ctx context.Context) (int, error)
		})
		if !ok {
			fmt.Println("Nothing to migrate for the", cfg.Database.Driver, "driver")
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		v, err := versioned.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Schema is at version %d\n", v)
		return nil
	},
}

// --- seed command ---

var seedDays int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo analytics data into a local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver == "memory" {
			return errors.New("seed needs a persistent driver (sqlite or postgres); the memory store seeds itself")
		}
		if seedDays <= 0 {
			return fmt.Errorf("--days must be positive, got %d", seedDays)
		}

		store, err := openDatabase()
		if err != nil {
			return err
		}
		defer store.Close()

		seeder, ok := storage.AsSeeder(store)
		if !ok {
			return fmt.Errorf("driver %s cannot be seeded", cfg.Database.Driver)
		}

		ctx, stop := signalContext()
		defer stop()
		if err := storage.Seed(ctx, seeder, storage.DemoDataset(time.Now(), seedDays)); err != nil {
			return err
		}
		fmt.Printf("Seeded %d days of demo data\n", seedDays)
		return nil
	},
}

// openDatabase opens the configured database without the Redis overlay or
// demo seeding. Opening a SQL store applies pending migrations.
func openDatabase() (storage.Storage, error) {
	return storage.Open(databaseConfig(cfg.Database), logger)
}
