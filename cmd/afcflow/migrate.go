package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/config"
	"github.com/BaSui01/afcflow/internal/database"
	"github.com/BaSui01/afcflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	var err error
	switch subcommand {
	case "up":
		err = withMigrator("migrate up", subargs, 0, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunUp(ctx)
		})
	case "down":
		err = runMigrateDown(subargs)
	case "steps":
		err = withMigrator("migrate steps", subargs, 1, func(ctx context.Context, cli *migration.CLI, pos []string) error {
			n, err := strconv.Atoi(pos[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q: %w", pos[0], err)
			}
			return cli.RunSteps(ctx, n)
		})
	case "status":
		err = withMigrator("migrate status", subargs, 0, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunStatus(ctx)
		})
	case "version":
		err = withMigrator("migrate version", subargs, 0, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunVersion(ctx)
		})
	case "goto":
		err = withMigrator("migrate goto", subargs, 1, func(ctx context.Context, cli *migration.CLI, pos []string) error {
			v, err := strconv.ParseUint(pos[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", pos[0], err)
			}
			return cli.RunGoto(ctx, uint(v))
		})
	case "force":
		err = withMigrator("migrate force", subargs, 1, func(ctx context.Context, cli *migration.CLI, pos []string) error {
			v, err := strconv.Atoi(pos[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", pos[0], err)
			}
			return cli.RunForce(ctx, v)
		})
	case "reset":
		err = withMigrator("migrate reset", subargs, 0, func(ctx context.Context, cli *migration.CLI, _ []string) error {
			return cli.RunDownAll(ctx)
		})
	case "seed-config":
		err = runSeedConfig(subargs)
	case "seed-ap":
		err = runSeedAccessPoint(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Registry Database Commands

Usage:
  afcflow migrate <subcommand> [options] [args]

Subcommands:
  up                              Apply all pending migrations
  down [--all]                    Rollback the last migration (or all)
  steps <n>                       Apply (n>0) or rollback (n<0) n migrations
  status                          Show migration status
  version                         Show current migration version
  goto <version>                  Migrate to a specific version
  force <version>                 Force set migration version (use with caution)
  reset                           Rollback all migrations
  seed-config <region> <file>     Store the JSON config document of a region
  seed-ap <serial> <certId> <org> Register an access point
  help                            Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  afcflow migrate up
  afcflow migrate up --config /etc/afcflow/config.yaml
  afcflow migrate down --all
  afcflow migrate goto 1
  afcflow migrate seed-config US ./configs/us.json
  afcflow migrate seed-ap SN-001 "FCC ABC123" acme`)
}

// migrateFlags are shared by every subcommand.
type migrateFlags struct {
	configPath *string
	dbType     *string
	dbURL      *string
}

func registerMigrateFlags(fs *flag.FlagSet) migrateFlags {
	return migrateFlags{
		configPath: fs.String("config", "", "Path to config file"),
		dbType:     fs.String("db-type", "", "Database type (postgres, mysql, sqlite)"),
		dbURL:      fs.String("db-url", "", "Database connection URL"),
	}
}

// databaseConfig 加载配置文件中的数据库段，--db-type 覆盖驱动
func (f migrateFlags) databaseConfig() (config.DatabaseConfig, error) {
	loader := config.NewLoader()
	if *f.configPath != "" {
		loader = loader.WithConfigPath(*f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return config.DatabaseConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	if *f.dbType != "" {
		cfg.Database.Driver = *f.dbType
	}
	return cfg.Database, nil
}

// createMigrator prefers an explicit --db-type/--db-url pair over the config
func (f migrateFlags) createMigrator() (*migration.DefaultMigrator, error) {
	if *f.dbType != "" && *f.dbURL != "" {
		return migration.NewMigratorFromURL(*f.dbType, *f.dbURL)
	}
	dbCfg, err := f.databaseConfig()
	if err != nil {
		return nil, err
	}
	return migration.NewMigratorFromDatabaseConfig(dbCfg)
}

// withMigrator parses flags, checks the positional argument count and runs fn
// with a CLI bound to a fresh migrator.
func withMigrator(name string, args []string, nargs int, fn func(ctx context.Context, cli *migration.CLI, pos []string) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := registerMigrateFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, nargs, fs.NArg())
	}

	migrator, err := flags.createMigrator()
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	return fn(context.Background(), migration.NewCLI(migrator), fs.Args())
}

// runMigrateDown rolls back the last migration, or all of them with --all
func runMigrateDown(args []string) error {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	flags := registerMigrateFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	migrator, err := flags.createMigrator()
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	if *all {
		return cli.RunDownAll(context.Background())
	}
	return cli.RunDown(context.Background())
}

// =============================================================================
// 🌱 注册表种子数据
// =============================================================================

// withRegistry opens the configured registry database and runs fn inside a
// retried transaction.
func withRegistry(name string, args []string, nargs int, fn func(reg *registry.Registry, pos []string) error) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := registerMigrateFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, nargs, fs.NArg())
	}

	dbCfg, err := flags.databaseConfig()
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	gormDB, err := openDatabase(dbCfg, logger)
	if err != nil {
		return err
	}
	poolCfg := database.DefaultPoolConfig()
	poolCfg.HealthCheckInterval = 0
	pm, err := database.NewPoolManager(gormDB, poolCfg, logger)
	if err != nil {
		return err
	}
	defer pm.Close()

	ctx := context.Background()
	return pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return fn(registry.New(tx, nil, logger), fs.Args())
	})
}

// runSeedConfig stores <file> as the config document of <region>
func runSeedConfig(args []string) error {
	return withRegistry("migrate seed-config", args, 2, func(reg *registry.Registry, pos []string) error {
		region, file := pos[0], pos[1]
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("%s is not valid JSON", file)
		}
		if err := reg.PutConfig(context.Background(), region, json.RawMessage(raw)); err != nil {
			return err
		}
		fmt.Printf("Stored config for region %s (%d bytes)\n", region, len(raw))
		return nil
	})
}

// runSeedAccessPoint registers <serial> with certification "<nra> <id>" for <org>
func runSeedAccessPoint(args []string) error {
	return withRegistry("migrate seed-ap", args, 3, func(reg *registry.Registry, pos []string) error {
		ap := &registry.AccessPoint{
			SerialNumber:    pos[0],
			CertificationID: pos[1],
			Org:             pos[2],
		}
		if err := reg.PutAccessPoint(context.Background(), ap); err != nil {
			return err
		}
		fmt.Printf("Registered access point %s for %s\n", ap.SerialNumber, ap.Org)
		return nil
	})
}
