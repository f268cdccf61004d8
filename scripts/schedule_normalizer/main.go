package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/dto"
	"github.com/noah-isme/tuition-api/internal/repository"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/database"
	"github.com/noah-isme/tuition-api/pkg/logger"
)

func main() {
	var (
		roomID  string
		dryRun  bool
		output  string
		timeout time.Duration
	)

	flag.StringVar(&roomID, "room", "", "Room ID legacy schedules are booked into (required)")
	flag.BoolVar(&dryRun, "dry-run", true, "Only check legacy schedules, write nothing")
	flag.StringVar(&output, "out", "", "Write the JSON report to this file instead of stdout")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall migration timeout")
	flag.Parse()

	if roomID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	rooms := repository.NewRoomRepository(db)
	classes := repository.NewClassRepository(db)
	scheduleCfg := service.ScheduleServiceConfig{LockTimeout: cfg.Scheduling.LockTimeout, CacheTTL: cfg.Scheduling.CacheTTL}
	schedules := service.NewScheduleService(
		repository.NewClassScheduleRepository(db),
		classes,
		rooms,
		repository.NewTimeSlotRepository(db),
		db,
		nil,
		nil,
		scheduleCfg,
		validator.New(),
		logr,
	)
	migrator := service.NewLegacyMigrationService(classes, schedules, logr)

	report, err := migrator.Migrate(ctx, roomID, dryRun)
	if err != nil {
		logr.Fatal("legacy migration failed", zap.Error(err))
	}
	logr.Info("legacy migration finished",
		zap.Bool("dry_run", report.DryRun),
		zap.Int("classes", report.Classes),
		zap.Int("created", report.Created),
		zap.Int("existing", report.Existing),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("unparseable", report.Unparseable),
	)

	if err := writeReport(report, output); err != nil {
		logr.Fatal("failed to write report", zap.Error(err))
	}
	if report.Conflicts > 0 || report.Unparseable > 0 {
		os.Exit(1)
	}
}

func writeReport(report *dto.LegacyMigrationReport, path string) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
