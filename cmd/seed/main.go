// Command seed loads catalog fixtures into the configured database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/feichai0017/ipo-quickread/config"
	"github.com/feichai0017/ipo-quickread/internal/fixtures"
	"github.com/feichai0017/ipo-quickread/internal/store/backend"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

func main() {
	var (
		file        = flag.StringP("file", "f", "", "YAML fixture file to load")
		demo        = flag.Bool("demo", false, "load the built-in demo filing")
		databaseURL = flag.String("database-url", "", "database URL (default: $DATABASE_URL)")
		timeout     = flag.Duration("timeout", time.Minute, "overall timeout")
	)
	flag.Parse()

	if *file == "" && !*demo {
		fmt.Fprintln(os.Stderr, "seed: one of --file or --demo is required")
		flag.Usage()
		os.Exit(2)
	}

	appCfg := config.GetAppConfig()
	if *databaseURL == "" {
		*databaseURL = appCfg.DatabaseURL
	}

	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding("console"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	s, err := backend.Open(ctx, *databaseURL, log)
	if err != nil {
		log.Fatal("Failed to open filing store", logger.Error(err))
	}
	defer s.Close()

	now := time.Now()
	var total fixtures.Summary
	if *demo {
		sum, err := fixtures.LoadDemo(ctx, s, now, log)
		if err != nil {
			log.Fatal("Failed to load demo fixture", logger.Error(err))
		}
		total.Created += sum.Created
		total.Skipped += sum.Skipped
	}
	if *file != "" {
		sum, err := fixtures.LoadFile(ctx, s, *file, now, log)
		if err != nil {
			log.Fatal("Failed to load fixtures", logger.String("file", *file), logger.Error(err))
		}
		total.Created += sum.Created
		total.Skipped += sum.Skipped
	}

	log.Info("Seeding done",
		logger.String("db", string(s.Kind())),
		logger.Int("created", total.Created),
		logger.Int("skipped", total.Skipped),
	)
}
