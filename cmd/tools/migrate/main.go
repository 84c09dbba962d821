// cmd/tools/migrate/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"audit-planner/internal/common/config"
	"audit-planner/internal/common/database"
)

func main() {
	upCmd := flag.NewFlagSet("up", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	upConfig := upCmd.String("config", "", "Path to config file (default: search ./configs)")
	checkConfig := checkCmd.String("config", "", "Path to config file (default: search ./configs)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "up":
		upCmd.Parse(os.Args[2:])
		pg := connect(*upConfig)
		defer pg.Close()

		applied, err := pg.Migrate(ctx)
		for _, v := range applied {
			fmt.Printf("Applied %s\n", v)
		}
		if err != nil {
			fmt.Printf("Error applying migrations: %v\n", err)
			os.Exit(1)
		}
		if len(applied) == 0 {
			fmt.Println("Schema already up to date.")
		}

	case "check":
		checkCmd.Parse(os.Args[2:])
		pg := connect(*checkConfig)
		defer pg.Close()

		pending, err := pg.Pending(ctx)
		if err != nil {
			fmt.Printf("Error checking migrations: %v\n", err)
			os.Exit(1)
		}
		if len(pending) > 0 {
			for _, m := range pending {
				fmt.Printf("Pending %s\n", m.Version)
			}
			os.Exit(2)
		}
		fmt.Println("Schema up to date.")

	case "list":
		all, err := database.Migrations()
		if err != nil {
			fmt.Printf("Error reading embedded migrations: %v\n", err)
			os.Exit(1)
		}
		for _, m := range all {
			fmt.Println(m.Version)
		}

	default:
		help()
		os.Exit(1)
	}
}

func connect(path string) *database.PostgresClient {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		fmt.Printf("Error: database.driver is %q, migrations only apply to %q\n", cfg.Database.Driver, config.DriverPostgres)
		os.Exit(1)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	return pg
}

func help() {
	fmt.Println("Usage: migrate <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  up     Apply pending schema migrations")
	fmt.Println("  check  Exit 2 if migrations are pending")
	fmt.Println("  list   Print the embedded migration versions")
}
