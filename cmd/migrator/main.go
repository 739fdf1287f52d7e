// Command migrator applies the embedded database migrations.
//
// Supports up/down/status/drop against the database named by DATABASE_URL.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development; environment wins in deployment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	runner, err := NewRunner(cfg)
	if err != nil {
		log.Fatalf("Failed to create migration runner: %v", err)
	}

	defer func() {
		_ = runner.Close()
	}()

	if err := run(os.Args[1], runner); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(command string, runner *Runner) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "drop":
		fmt.Print("WARNING: this will drop all tables. Are you sure? (y/N): ")

		var response string

		_, _ = fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			return runner.Drop()
		}

		fmt.Println("Operation cancelled.")

		return nil
	default:
		printUsage()

		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println(`Usage: migrator COMMAND

Commands:
  up      Apply all pending migrations
  down    Roll back the last migration
  status  Show current migration version
  drop    Drop all tables (requires confirmation)

Environment:
  DATABASE_URL     PostgreSQL connection string (required)
  MIGRATION_TABLE  Migration tracking table (default: schema_migrations)`)
}
