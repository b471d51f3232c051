package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	"github.com/reconsumeralization/modernmen-sub011/internal/repository"
	"github.com/reconsumeralization/modernmen-sub011/internal/service"
	"github.com/reconsumeralization/modernmen-sub011/pkg/config"
	"github.com/reconsumeralization/modernmen-sub011/pkg/database"
	"github.com/reconsumeralization/modernmen-sub011/pkg/logger"
)

// bookingLister is the read side the audit needs.
type bookingLister interface {
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
}

// dayInspector runs the detector against one resource-day.
type dayInspector interface {
	DayContext(ctx context.Context, key models.DayKey) (service.DayContext, error)
}

type auditReport struct {
	From      string                  `json:"from" yaml:"from"`
	To        string                  `json:"to" yaml:"to"`
	Days      int                     `json:"days" yaml:"days"`
	Bookings  int                     `json:"bookings" yaml:"bookings"`
	Conflicts []models.ConflictRecord `json:"conflicts" yaml:"conflicts"`
}

func main() {
	today := time.Now().Format(models.DateLayout)
	from := flag.String("from", today, "first date to audit (YYYY-MM-DD)")
	to := flag.String("to", "", "last date to audit, defaults to -from")
	resource := flag.String("resource", "", "limit the audit to one resource")
	format := flag.String("format", "json", "output format: json or yaml")
	flag.Parse()
	if *to == "" {
		*to = *from
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	business, err := service.NewBusinessHours(cfg.Business)
	if err != nil {
		logr.Fatal("invalid business hours", zap.Error(err))
	}
	threshold, err := decimal.NewFromString(cfg.Resolver.RevenueAtRisk)
	if err != nil {
		logr.Fatal("invalid RESOLVER_REVENUE_AT_RISK", zap.Error(err))
	}

	var source service.DirectorySource = repository.NewDirectoryRepository(db)
	if cfg.Directory.Source == "file" {
		source = repository.NewFileDirectoryRepository(cfg.Directory.File)
	}
	directory := service.NewDirectoryService(source, nil, logr)
	if _, err := directory.Refresh(ctx); err != nil {
		logr.Fatal("failed to load directory", zap.Error(err))
	}
	bookings := repository.NewBookingRepository(db)
	store := service.NewCalendarStore(repository.NewCalendarRepository(db), bookings, logr)
	availability := service.NewAvailabilityService(store, directory, service.NewWorkingHours(business), cfg.Business)

	report, err := audit(ctx, bookings, availability, service.NewConflictDetector(threshold), models.BookingFilter{
		ResourceID: *resource,
		From:       *from,
		To:         *to,
	})
	if err != nil {
		logr.Fatal("audit failed", zap.Error(err))
	}
	if err := write(os.Stdout, *format, report); err != nil {
		logr.Fatal("failed to write report", zap.Error(err))
	}
	if len(report.Conflicts) > 0 {
		os.Exit(2)
	}
}

// audit groups live bookings by resource-day and runs the detector on each day. Nothing is written back.
func audit(ctx context.Context, lister bookingLister, days dayInspector, detector *service.ConflictDetector, filter models.BookingFilter) (*auditReport, error) {
	if _, err := models.DaysBetween(filter.From, filter.To); err != nil {
		return nil, fmt.Errorf("invalid range: %w", err)
	}
	filter.Statuses = []models.BookingStatus{models.BookingTentative, models.BookingConfirmed, models.BookingConflicted}
	bookings, err := lister.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	grouped := make(map[models.DayKey][]models.Booking)
	for _, b := range bookings {
		key := models.DayKey{ResourceID: b.ResourceID, Date: b.Date}
		grouped[key] = append(grouped[key], b)
	}
	keys := make([]models.DayKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].ResourceID < keys[j].ResourceID
	})

	report := &auditReport{From: filter.From, To: filter.To, Days: len(keys), Bookings: len(bookings), Conflicts: []models.ConflictRecord{}}
	for _, key := range keys {
		dc, err := days.DayContext(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("day %s/%s: %w", key.ResourceID, key.Date, err)
		}
		report.Conflicts = append(report.Conflicts, detector.Detect(dc, grouped[key]).Records...)
	}
	return report, nil
}

func write(w io.Writer, format string, report *auditReport) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(report)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
