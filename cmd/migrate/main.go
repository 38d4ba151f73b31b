package main

import (
	"flag"
	"log"
	"os"

	"github.com/ogurasousui/site-access/assets"
	"github.com/ogurasousui/site-access/internal/platform/config"
	"github.com/ogurasousui/site-access/internal/platform/db/migration"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
	flag.Parse()

	raw := "up"
	if flag.NArg() > 0 {
		raw = flag.Arg(0)
	}
	action, err := migration.ParseAction(raw)
	if err != nil {
		log.Fatalf("invalid action: %v", err)
	}

	cfgPath := effectiveConfigPath(*configPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := migration.Run(assets.Migrations, "migrations", cfg.Database.DSN(), action); err != nil {
		log.Fatalf("migration %s failed: %v", action, err)
	}

	log.Printf("migration %s completed", action)
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
