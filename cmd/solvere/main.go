package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/solvere/internal/activity"
	"github.com/core-coin/solvere/internal/blockchain"
	"github.com/core-coin/solvere/internal/bundler"
	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/http_api"
	"github.com/core-coin/solvere/internal/notificator"
	"github.com/core-coin/solvere/internal/relay"
	"github.com/core-coin/solvere/internal/repository"
	"github.com/core-coin/solvere/internal/signer"
	"github.com/core-coin/solvere/internal/solvere"
	"github.com/core-coin/solvere/internal/userop"
	"github.com/core-coin/solvere/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "solvere",
		Usage: "Solvere schedules and reconciles subscription payments of an ERC-4337 account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "Database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "account", Aliases: []string{"a"}, Usage: "Smart account address"},
			&cli.StringFlag{Name: "relay-url", Aliases: []string{"r"}, Usage: "Relay service URL"},
			&cli.StringFlag{Name: "strategy", Aliases: []string{"s"}, Usage: "Reconcile strategy (probing or batch)"},
			&cli.DurationFlag{Name: "reconcile-interval", Usage: "Time between background reconciliation passes"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the background reconciliation loop",
				Action: serve,
			},
			{
				Name:  "reconcile",
				Usage: "Run one reconciliation pass and print the activity feed",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "chain-id", Aliases: []string{"c"}, Usage: "Chain to reconcile", Required: true},
				},
				Action: reconcile,
			},
		},
		DefaultCommand: "serve",
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		// Flags may supply what the environment lacks.
		cfg = config.Load()
	}

	// Override with flags if set
	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("account") {
		cfg.AccountAddress = c.String("account")
	}
	if c.IsSet("relay-url") {
		cfg.RelayURL = c.String("relay-url")
	}
	if c.IsSet("strategy") {
		cfg.ReconcileStrategy = c.String("strategy")
	}
	if c.IsSet("reconcile-interval") {
		cfg.ReconcileInterval = c.Duration("reconcile-interval")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	return cfg, nil
}

// app holds everything a command needs, plus what must be closed afterwards.
type app struct {
	log      *logger.Logger
	cfg      *config.Config
	solvere  *solvere.Solvere
	telegram *notificator.TelegramNotificator
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("Failed to close resource", "error", err)
		}
	}
	_ = a.log.Sync()
}

func openDB(cfg *config.Config, log *logger.Logger) (*repository.Store, error) {
	if cfg.DBDriver == config.DriverSQLite {
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	}
	return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
}

func build(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}
	a := &app{log: log, cfg: cfg}

	// Initialize database
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	a.closers = append(a.closers, db.Close)

	registry, err := chains.NewRegistry(cfg.Deployments)
	if err != nil {
		a.close()
		return nil, err
	}
	owner, err := signer.NewLocalSigner(cfg.OwnerPrivateKey)
	if err != nil {
		a.close()
		return nil, err
	}
	builder := userop.NewBuilder(common.HexToAddress(cfg.AccountAddress), registry, owner)
	log.Info("Loaded account", "account", builder.Account().Hex(), "owner", owner.Address().Hex(), "chains", registry.ChainIDs())

	// Initialize blockchain service
	ethereum := blockchain.NewEthereum(cfg.RPCURLs, registry, log)
	if err := ethereum.Run(); err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, ethereum.Close)

	bundlerClient := bundler.NewClient(cfg.BundlerRPS, log)
	for chainID, url := range cfg.BundlerURLs {
		if err := bundlerClient.Dial(c.Context, chainID, url); err != nil {
			a.close()
			return nil, err
		}
	}
	a.closers = append(a.closers, func() error { bundlerClient.Close(); return nil })

	strategy, err := activity.NewStrategy(cfg.ReconcileStrategy, builder, bundlerClient, cfg.PresignBatchSize)
	if err != nil {
		a.close()
		return nil, err
	}
	reconciler := activity.NewReconciler(db, registry, strategy, cfg.ReconcileConcurrency, log)

	// Initialize notificator
	var email *notificator.EmailNotificator
	if cfg.SMTPHost != "" && cfg.NotifyEmail != "" {
		email = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPAlternativePort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender, cfg.NotifyEmail)
	}
	if cfg.TelegramBotToken != "" {
		a.telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.solvere = solvere.NewSolvere(
		db,
		ethereum,
		builder,
		reconciler,
		bundler.NewSender(bundlerClient, builder, ethereum, log),
		relay.NewHTTPRelay(cfg.RelayURL, log),
		notificator.NewNotificator(log, a.telegram, email),
		log,
		cfg,
	)
	return a, nil
}

func serve(c *cli.Context) error {
	a, err := build(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.telegram != nil {
		go a.telegram.Start(ctx)
	}
	apiServer := http_api.NewHTTPServer(a.solvere, a.cfg.APIPort, a.log)
	go apiServer.Start()

	// Start the application
	a.solvere.Start(ctx)

	return apiServer.Shutdown()
}

func reconcile(c *cli.Context) error {
	a, err := build(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()
	feed, err := a.solvere.Activity(ctx, c.Int64("chain-id"))
	if err != nil {
		return err
	}
	for _, action := range feed {
		fmt.Fprintf(c.App.Writer, "%s\t%-22s\t%s\t%s\n",
			time.Unix(action.Timestamp, 0).UTC().Format(time.RFC3339), action.Title, action.Description, action.ExplorerLink)
	}
	return nil
}
