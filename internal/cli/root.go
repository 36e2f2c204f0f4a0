package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/internal/api"
	"github.com/graceworks/missionsync/internal/auth"
	"github.com/graceworks/missionsync/internal/config"
	"github.com/graceworks/missionsync/internal/mapstore"
	"github.com/graceworks/missionsync/internal/service"
	"github.com/graceworks/missionsync/pkg/infra"
)

var (
	envFile string
	logFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "missionsync",
	Short: "ServePoint to Beacon CRM synchronizer",
	Long: `missionsync mirrors mission trip data from ServePoint into Beacon CRM.

Trips become Beacon events, volunteers become constituents with their
contact details kept current, registrations become event participants and
trip payments post to the gift ledger. Every synced record carries a
stable lookup ID, so running any command twice never creates duplicates.`,
	Version: "0.3.1",
}

// Execute runs the CLI under the given context; signal handling is wired
// by main.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file read before configuration (default: .env)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path (overrides LOG_FILE)")
}

func initConfig() {
	if envFile != "" {
		cfg = config.Load(envFile)
	} else {
		cfg = config.Load()
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	logger = infra.SetupLogger(cfg)
	slog.SetDefault(logger)
}

// runtime bundles the wired clients and services commands work with.
type runtime struct {
	servePoint *api.ServePoint
	beacon     *api.Beacon
	store      *mapstore.Store
	fundMap    *mapstore.FundMap
	orch       *service.Orchestrator
	reports    *service.Reports
	spTokens   *auth.ClientCredentialsSource
	bcTokens   *auth.RefreshTokenSource
}

// buildRuntime validates configuration and wires the full stack: token
// sources, rate-limited HTTP clients, mapping stores and services.
func buildRuntime(dryRun bool) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	spTokens := auth.NewClientCredentialsSource("servepoint",
		cfg.ServePointTokenURL, cfg.ServePointClientID, cfg.ServePointClientSecret,
		auth.NewFileStore(cfg.ServePointTokenFile), logger)
	bcTokens := auth.NewRefreshTokenSource("beacon",
		cfg.BeaconTokenURL, cfg.BeaconClientID, cfg.BeaconClientSecret,
		auth.NewFileStore(cfg.BeaconTokenFile), logger)
	if err := bcTokens.Seed(cfg.BeaconAccessTokenSeed, cfg.BeaconRefreshTokenSeed); err != nil {
		return nil, fmt.Errorf("seed beacon token state: %w", err)
	}

	spClient := api.NewClient("servepoint", cfg.ServePointBaseURL, spTokens, logger)
	spClient.SetRateLimit(cfg.RequestsPerSecond)
	bcClient := api.NewClient("beacon", cfg.BeaconBaseURL, bcTokens, logger)
	bcClient.SetRateLimit(cfg.RequestsPerSecond)
	bcClient.SetHeader("Beacon-Subscription-Key", cfg.BeaconSubscriptionKey)

	sp := api.NewServePoint(spClient, cfg.PageSize)
	bc := api.NewBeacon(bcClient, cfg.PageSize)

	store, err := mapstore.Open(cfg.EventMappingFile, cfg.ConstituentMappingFile, logger)
	if err != nil {
		return nil, err
	}
	fundMap, err := mapstore.LoadFundMap(cfg.FundMappingFile)
	if err != nil {
		return nil, err
	}
	if fundMap.DefaultFundID == "" {
		fundMap.DefaultFundID = cfg.DefaultFundID
	}

	rec := service.NewReconciler(bc, store, logger)
	rec.SetDryRun(dryRun)
	events := service.NewEventSync(sp, bc, rec, store, logger)
	events.SetDryRun(dryRun)
	financial := service.NewFinancialSync(sp, bc, rec, fundMap, logger)

	return &runtime{
		servePoint: sp,
		beacon:     bc,
		store:      store,
		fundMap:    fundMap,
		orch:       service.NewOrchestrator(events, financial, logger),
		reports:    service.NewReports(sp, bc, logger),
		spTokens:   spTokens,
		bcTokens:   bcTokens,
	}, nil
}
