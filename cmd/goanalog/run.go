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
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/temcen/goanalog/internal/app"
	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/database"
	"github.com/temcen/goanalog/internal/messaging"
	"github.com/temcen/goanalog/internal/services"
	"github.com/temcen/goanalog/internal/usage"
	"github.com/temcen/goanalog/pkg/models"
)

// cliOptions mirrors the recommendation query parameters of the HTTP API.
type cliOptions struct {
	limit          int
	minNeighbors   int
	neighborCutoff float64
	basedOn        int
	usageCutoff    float64
	popular        bool
	mode           string
	sort           string
	order          string
	sign           string
	showScores     bool
}

func (o *cliOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&o.limit, "limit", 0, "number of recommendations (default: from config)")
	f.IntVar(&o.minNeighbors, "min-neighbors", 0, "similar played items required for a personalized score")
	f.Float64Var(&o.neighborCutoff, "neighbor-cutoff", 0, "minimum similarity for an item to count as a neighbor")
	f.IntVar(&o.basedOn, "based-on", 0, "played items listed as the reason for each recommendation")
	f.Float64Var(&o.usageCutoff, "usage-cutoff", 0, "minutes below which usage is ignored")
	f.BoolVar(&o.popular, "popular", true, "fill with popular items when personalization is short")
	f.StringVar(&o.mode, "mode", "", "recommend or hate")
	f.StringVar(&o.sort, "sort", "", "score, title, rating, ranking or release")
	f.StringVar(&o.order, "order", "", "asc or desc")
	f.StringVar(&o.sign, "sign", "", "keep positive, negative or all (none) scores")
	f.BoolVar(&o.showScores, "show-scores", false, "include scores in the output")
}

// toOptions only overrides the server defaults for flags given on the command line.
func (o *cliOptions) toOptions(cmd *cobra.Command) models.RecommendationOptions {
	f := cmd.Flags()
	opts := models.RecommendationOptions{
		Limit:        o.limit,
		MinNeighbors: o.minNeighbors,
		BasedOn:      o.basedOn,
		Mode:         o.mode,
		Sort:         o.sort,
		Order:        o.order,
		Sign:         o.sign,
		ShowScores:   o.showScores,
	}
	if f.Changed("neighbor-cutoff") {
		opts.NeighborCutoff = &o.neighborCutoff
	}
	if f.Changed("usage-cutoff") {
		opts.UsageCutoff = &o.usageCutoff
	}
	if f.Changed("popular") {
		opts.Popular = &o.popular
	}
	return opts
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, port string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	logger := application.Logger()

	server := application.Server()
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logger.WithField("port", cfg.Server.Port).Info("Server started")

	select {
	case err := <-serveErr:
		_ = application.Shutdown(context.Background())
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// cliService builds a recommendation service without caching, metrics or event publishing and
// loads the models once.
func cliService(ctx context.Context, cfg *config.Config, withSteam bool) (*services.RecommendationService, func(), error) {
	logger := app.SetupLogger(cfg)

	var db *database.Database
	if cfg.Catalog.Source == "postgres" {
		var err error
		db, err = database.New(ctx, &config.Config{Database: cfg.Database}, logger)
		if err != nil {
			return nil, nil, err
		}
	}
	cleanup := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	registry, err := app.NewRegistry(cfg, db, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var source usage.Source
	if withSteam {
		source = usage.NewSteamClient(&cfg.Steam, nil, logger)
	}

	cfg.Caching.Enabled = false
	svc := services.NewRecommendationService(registry, source, nil, messaging.NoopPublisher{}, nil, cfg, logger)
	if _, err := svc.Reload(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load models: %w", err)
	}
	return svc, cleanup, nil
}

func runRecommend(cmd *cobra.Command, steamID, usageFile, domain string, o cliOptions, jsonOutput bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	quiet(cfg)

	svc, cleanup, err := cliService(ctx, cfg, steamID != "")
	if err != nil {
		return err
	}
	defer cleanup()

	opts := o.toOptions(cmd)
	var resp *models.RecommendationResponse
	if usageFile != "" {
		records, err := usage.ReadCSVFile(usageFile)
		if err != nil {
			return err
		}
		resp, err = svc.RecommendFromUsage(ctx, models.RecommendationRequest{
			Domain:  domain,
			Usage:   records,
			Options: opts,
		})
		if err != nil {
			return describe(err)
		}
	} else {
		resp, err = svc.RecommendForUser(ctx, steamID, domain, opts)
		if err != nil {
			return describe(err)
		}
	}

	if jsonOutput {
		return writeJSON(resp)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "RANK\tTITLE\tBECAUSE YOU PLAYED\tKIND"
	if opts.ShowScores {
		header += "\tSCORE"
	}
	fmt.Fprintln(w, header)
	for _, r := range resp.Recommendations {
		line := fmt.Sprintf("%d\t%s\t%s\t%s", r.Rank, r.Title, strings.Join(r.Because, ", "), r.ScoreKind)
		if opts.ShowScores && r.Score != nil {
			line += fmt.Sprintf("\t%.2f", *r.Score)
		}
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d personalized, %d popular\n", resp.Personalized, resp.Fallback)
	return nil
}

func runSimilar(cmd *cobra.Command, domain, itemID string, n int, reverse, jsonOutput bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	quiet(cfg)

	svc, cleanup, err := cliService(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := svc.Similar(ctx, domain, itemID, n, reverse)
	if err != nil {
		return describe(err)
	}

	if jsonOutput {
		return writeJSON(resp)
	}

	fmt.Printf("Items similar to %s (%s)\n\n", resp.Source.Title, resp.Source.ID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSIMILARITY")
	for _, it := range resp.Items {
		fmt.Fprintf(w, "%s\t%s\t%.3f\n", it.ItemID, it.Title, it.Similarity)
	}
	return w.Flush()
}

func runCatalogImport(ctx context.Context, domain, file string) error {
	if domain != models.DomainBoardGames && domain != models.DomainVideoGames {
		return fmt.Errorf("unknown catalog domain %q", domain)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("catalog import needs database.url (or DATABASE_URL)")
	}
	logger := app.SetupLogger(cfg)

	items, err := catalog.NewCSVLoader(map[string]string{domain: file}, logger).Load(ctx, domain)
	if err != nil {
		return err
	}

	db, err := database.New(ctx, &config.Config{Database: cfg.Database}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := catalog.NewRepository(db.PG, logger)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	n, err := repo.Upsert(ctx, domain, items)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"domain": domain,
		"items":  n,
		"file":   file,
	}).Info("Catalog imported")
	return nil
}

// quiet keeps routine logs off the terminal for one-shot commands unless the config asks for
// debug output.
func quiet(cfg *config.Config) {
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil && lvl == logrus.InfoLevel {
		cfg.Logging.Level = "warn"
	}
}

// describe prefixes a service error with its API error code.
func describe(err error) error {
	return fmt.Errorf("%s: %w", services.ErrorCode(err), err)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
