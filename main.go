package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/internal/cache"
	"github.com/customeros/mailwarden/internal/database"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/repository"
	"github.com/customeros/mailwarden/internal/utils"
	"github.com/customeros/mailwarden/server"
	"github.com/customeros/mailwarden/services"
)

const appSource = "mailwarden-cli"

func main() {
	app := &cli.App{
		Name:  "mailwarden",
		Usage: "sender reputation and rate training engine",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:  "train",
				Usage: "Run a training pass and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scope", Value: string(enum.ScopeAll), Usage: "all, tenant or domain"},
					&cli.StringFlag{Name: "tenant", Usage: "tenant to train (scope tenant)"},
					&cli.StringFlag{Name: "domain", Usage: "domain id to train (scope domain)"},
				},
				Action: train,
			},
			{
				Name:   "monitor",
				Usage:  "Force a full monitoring run and print the summary",
				Action: monitorRun,
			},
			{
				Name:  "suppression",
				Usage: "Move the suppression list in and out as a flat file",
				Subcommands: []*cli.Command{
					{
						Name:  "export",
						Usage: "Write the suppression list to a file, or to object storage with --key",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "output file, - for stdout", Value: "-"},
							&cli.StringFlag{Name: "key", Usage: "object storage key"},
							&cli.BoolFlag{Name: "metadata", Usage: "include the JSON metadata column"},
						},
						Action: suppressionExport,
					},
					{
						Name:  "import",
						Usage: "Load a flat file into the suppression list",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true},
							&cli.StringFlag{Name: "type", Value: string(enum.SuppressionManual)},
							&cli.StringFlag{Name: "source", Value: "import"},
						},
						Action: suppressionImport,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	db, err := database.InitMailwardenDatabase(cfg.MailwardenDatabaseConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return cfg, db, nil
}

func migrate(c *cli.Context) error {
	_, db, err := loadConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateMailwardenDB(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func runServer(c *cli.Context) error {
	cfg, db, err := loadConfig()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailwarden starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}

// withServices wires the service graph for one-shot commands.
func withServices(c *cli.Context, fn func(ctx context.Context, svcs *services.Services) error) error {
	cfg, db, err := loadConfig()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	defer appLogger.Sync()

	ctx := utils.SetAppSourceInContext(c.Context, appSource)
	rdb, err := cache.NewRedisClient(ctx, cfg.RedisConfig.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	svcs, err := services.InitServices(cfg, appLogger, repository.InitRepositories(db), rdb)
	if err != nil {
		return err
	}
	defer svcs.Close()

	return fn(ctx, svcs)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func train(c *cli.Context) error {
	scope := models.TrainingScope{Tenant: c.String("tenant"), DomainID: c.String("domain")}
	switch enum.TrainingScopeKind(c.String("scope")) {
	case enum.ScopeAll:
		scope = models.TrainingScope{}
	case enum.ScopeTenant:
		if scope.Tenant == "" {
			return cli.Exit("--tenant is required for scope tenant", 2)
		}
		scope.DomainID = ""
	case enum.ScopeDomain:
		if scope.DomainID == "" {
			return cli.Exit("--domain is required for scope domain", 2)
		}
	default:
		return cli.Exit(fmt.Sprintf("unknown scope %q", c.String("scope")), 2)
	}

	return withServices(c, func(ctx context.Context, svcs *services.Services) error {
		result, err := svcs.TrainingEngine.RunTraining(ctx, scope)
		if err != nil {
			return err
		}
		return printJSON(result)
	})
}

func monitorRun(c *cli.Context) error {
	return withServices(c, func(ctx context.Context, svcs *services.Services) error {
		summary, err := svcs.MonitorService.ForceRun(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	})
}

func suppressionExport(c *cli.Context) error {
	return withServices(c, func(ctx context.Context, svcs *services.Services) error {
		if key := c.String("key"); key != "" {
			count, err := svcs.SuppressionService.ExportToStorage(ctx, key)
			if err != nil {
				return err
			}
			log.Printf("Exported %d entries to %s", count, key)
			return nil
		}

		out := os.Stdout
		if path := c.String("file"); path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		count, err := svcs.SuppressionService.Export(ctx, out, c.Bool("metadata"))
		if err != nil {
			return err
		}
		log.Printf("Exported %d entries", count)
		return nil
	})
}

func suppressionImport(c *cli.Context) error {
	f, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()

	return withServices(c, func(ctx context.Context, svcs *services.Services) error {
		result, err := svcs.SuppressionService.Import(ctx, f, enum.SuppressionType(c.String("type")), c.String("source"))
		if err != nil {
			return err
		}
		return printJSON(result)
	})
}
