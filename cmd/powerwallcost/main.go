package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/powerwallcost/internal/config"
	"github.com/lox/powerwallcost/internal/httputil"
	"github.com/lox/powerwallcost/internal/ingest"
	"github.com/lox/powerwallcost/internal/logging"
	"github.com/lox/powerwallcost/internal/metrics"
	"github.com/lox/powerwallcost/internal/scenario"
)

type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file with provider credentials'"`

	Start          string `default:"${start}" help:"First day of the report (YYYY-MM-DD)"`
	End            string `default:"${end}" help:"Last day of the report, inclusive (YYYY-MM-DD)"`
	DaylightSaving string `name:"daylight-saving" default:"${dst}" help:"Daylight-saving transition date (YYYY-MM-DD)"`
	PeriodDays     int    `name:"period-days" default:"${period}" help:"Days per price request"`

	TeslaSiteID string        `name:"tesla-site-id" help:"Energy site id; defaults to the account's first battery"`
	TeslaURL    string        `name:"tesla-url" default:"${tesla_url}" help:"Tesla owner API base URL"`
	AmberURL    string        `name:"amber-url" default:"${amber_url}" help:"Amber API base URL"`
	HTTPTimeout time.Duration `name:"http-timeout" default:"30s" help:"Per-request HTTP timeout"`
	Retries     uint64        `default:"0" help:"Extra attempts for rate-limited or failed provider requests"`

	Monthly  bool   `help:"Also print the per-month bills"`
	LogLevel string `name:"log-level" default:"info" help:"Log level (debug, info, warn, error)"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("powerwallcost"),
		kong.Description("Compare household energy bills with and without a battery and solar."),
		kong.UsageOnError(),
		kong.Vars{
			"start":     config.DefaultStart,
			"end":       config.DefaultEnd,
			"dst":       config.DefaultDaylightSaving,
			"period":    fmt.Sprint(config.DefaultPeriodDays),
			"tesla_url": ingest.DefaultTeslaURL,
			"amber_url": ingest.DefaultAmberURL,
		},
	)

	logger, err := logging.New(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = run(ctx, cli, logger, os.Stdout)
	logMetrics(logger)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI, logger *zap.Logger, out io.Writer) error {
	window, err := config.NewWindow(cli.Start, cli.End, cli.DaylightSaving, cli.PeriodDays)
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}
	creds := config.CredentialsFromEnv()
	if err := creds.Validate(); err != nil {
		return err
	}

	client := httputil.NewClientWithTimeout(cli.HTTPTimeout)
	tesla := ingest.NewTeslaClient(client, cli.TeslaURL, creds.TeslaAccessToken, cli.Retries)
	siteID := cli.TeslaSiteID
	if siteID == "" {
		battery, err := tesla.FirstBattery(ctx)
		if err != nil {
			return err
		}
		siteID = strconv.FormatInt(battery.EnergySiteID, 10)
		logger.Info("using first battery on account",
			zap.String("energy_site_id", siteID),
			zap.String("site_name", battery.SiteName))
	}
	tesla = tesla.ForSite(siteID)
	amber := ingest.NewAmberClient(client, cli.AmberURL, creds.AmberSiteID, creds.AmberAPIKey, cli.Retries)

	logger.Info("starting report",
		zap.String("tesla_account", creds.TeslaUsername),
		zap.String("energy_site_id", siteID),
		zap.String("start", window.Start.Format(config.DateLayout)),
		zap.String("end", window.End.Format(config.DateLayout)),
		zap.String("daylight_saving", window.DaylightSaving.Format(config.DateLayout)),
		zap.Int("period_days", window.PeriodDays))

	result, err := scenario.Compare(ctx, window,
		ingest.NewUsageBuilder(tesla, logger),
		ingest.NewPriceBuilder(amber, logger),
		logger)
	if err != nil {
		return err
	}
	return scenario.Report(out, result, cli.Monthly)
}

func logMetrics(logger *zap.Logger) {
	summary, err := metrics.Summary(prometheus.DefaultGatherer)
	if err != nil {
		logger.Warn("gather metrics", zap.Error(err))
		return
	}
	fields := make([]zap.Field, 0, len(summary))
	for _, k := range metrics.SortedKeys(summary) {
		fields = append(fields, zap.Float64(k, summary[k]))
	}
	logger.Info("run metrics", fields...)
}
