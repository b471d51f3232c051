package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/export"
	"github.com/reconsumeralization/modernmen-sub011/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// Export delivery modes.
const (
	DeliveryInline = "inline"
	DeliveryLink   = "link"
)

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult carries either the rendered payload (inline) or the signed link metadata.
type ExportResult struct {
	Format       string
	ContentType  string
	FileName     string
	Payload      []byte
	RelativePath string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// ExportService renders resource-day rosters and persists them for signed download.
type ExportService struct {
	store        *CalendarStore
	directory    *DirectoryService
	availability *AvailabilityService
	storage      fileStorage
	signer       *storage.SignedURLSigner
	exporters    map[string]export.Exporter
	logger       *zap.Logger
	cfg          ExportConfig
	now          func() time.Time
}

// NewExportService constructs an ExportService. With no exporters the csv, pdf and ics renderers are installed.
func NewExportService(store *CalendarStore, directory *DirectoryService, availability *AvailabilityService, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, exporters ...export.Exporter) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if len(exporters) == 0 {
		exporters = []export.Exporter{export.NewCSVExporter(), export.NewPDFExporter(), export.NewICSExporter()}
	}
	byFormat := make(map[string]export.Exporter, len(exporters))
	for _, e := range exporters {
		byFormat[e.Format()] = e
	}
	return &ExportService{
		store:        store,
		directory:    directory,
		availability: availability,
		storage:      files,
		signer:       signer,
		exporters:    byFormat,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Roster builds the printable calendar of one resource-day from the live store.
func (s *ExportService) Roster(ctx context.Context, resourceID, date string) (export.Roster, error) {
	res, err := s.directory.Resource(ctx, resourceID)
	if err != nil {
		return export.Roster{}, err
	}
	loc := s.availability.Location()
	if _, err := models.ParseDate(date, loc); err != nil {
		return export.Roster{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	snap, err := s.store.Snapshot(ctx, models.DayKey{ResourceID: resourceID, Date: date})
	if err != nil {
		return export.Roster{}, err
	}

	roster := export.Roster{
		ResourceID:   res.ID,
		ResourceName: res.Name,
		Date:         date,
		GeneratedAt:  s.now().UTC(),
	}
	for _, b := range snap.Bookings {
		if b.Status == models.BookingCancelled || b.Status == models.BookingRescheduled {
			continue
		}
		start, err := models.At(date, b.Start, loc)
		if err != nil {
			return export.Roster{}, err
		}
		end, err := models.At(date, b.End, loc)
		if err != nil {
			return export.Roster{}, err
		}
		name := b.ServiceID
		if svc, err := s.directory.Service(ctx, b.ServiceID); err == nil {
			name = svc.Name
		}
		roster.Entries = append(roster.Entries, export.RosterEntry{
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			Service:    name,
			Component:  b.Component,
			Status:     string(b.Status),
			Start:      start,
			End:        end,
		})
	}
	return roster, nil
}

// ExportRoster renders a resource-day roster in format and delivers it inline or as a signed link.
func (s *ExportService) ExportRoster(ctx context.Context, resourceID, date, format, delivery string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if delivery == "" {
		delivery = DeliveryInline
	}
	if delivery != DeliveryInline && delivery != DeliveryLink {
		return nil, appErrors.Clone(appErrors.ErrValidation, "delivery must be inline or link")
	}

	roster, err := s.Roster(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	payload, err := exporter.Render(roster)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render roster")
	}

	result := &ExportResult{
		Format:      format,
		ContentType: exporter.ContentType(),
		FileName:    roster.FileName(format),
	}
	if delivery == DeliveryInline {
		result.Payload = payload
		return result, nil
	}

	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "export storage is not configured")
	}
	relPath, err := s.storage.Save(result.FileName, payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(roster.Title(), relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	result.RelativePath = relPath
	result.Token = token
	result.URL = fmt.Sprintf("%s/exports/%s", prefix, token)
	result.ExpiresAt = expiresAt

	s.logger.Info("roster exported",
		zap.String("resource_id", resourceID),
		zap.String("date", date),
		zap.String("format", format),
		zap.String("file", relPath),
	)
	return result, nil
}

// OpenDownload validates a signed token and opens the stored file.
func (s *ExportService) OpenDownload(token string) (*os.File, string, error) {
	if s.storage == nil || s.signer == nil {
		return nil, "", appErrors.ErrNotFound
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	f, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	return f, relPath, nil
}

// ContentTypeFor maps a stored file name back to its exporter content type.
func (s *ExportService) ContentTypeFor(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx >= 0 {
		if e, ok := s.exporters[name[idx+1:]]; ok {
			return e.ContentType()
		}
	}
	return "application/octet-stream"
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}
