// Package receipt renders PDF receipts for confirmed reservations and stores
// them on local disk. The relative file path is the handle kept on the
// reservation.
package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/pkg/pricing"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

const (
	DefaultBaseDir = "./receipts"
	mimePDF        = "application/pdf"
)

var (
	ErrNotConfirmed  = errors.New("receipt: reservation is not confirmed")
	ErrInvalidHandle = errors.New("receipt: invalid handle")
)

type Repository interface {
	Create(ctx context.Context, rec *domain.Receipt) error
	GetByPath(ctx context.Context, path string) (*domain.Receipt, error)
}

type Generator struct {
	repo     Repository
	baseDir  string
	currency string
	now      func() time.Time
}

func NewGenerator(repo Repository, baseDir, currency string) *Generator {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &Generator{
		repo:     repo,
		baseDir:  baseDir,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate writes the receipt to baseDir/YYYY/MM/DD and returns its relative path.
func (g *Generator) Generate(ctx context.Context, r *domain.Reservation) (string, error) {
	if r.Status != domain.ReservationConfirmed {
		return "", ErrNotConfirmed
	}

	body, err := g.render(r)
	if err != nil {
		return "", err
	}

	now := g.now()
	relDir := fmt.Sprintf("%d/%02d/%02d", now.Year(), now.Month(), now.Day())
	absDir := filepath.Join(g.baseDir, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create receipt directory: %w", err)
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("%s_reservation-%d.pdf", id, r.ID)
	absPath := filepath.Join(absDir, filename)
	if err := os.WriteFile(absPath, body, 0o644); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}

	relPath := filepath.ToSlash(filepath.Join(relDir, filename))
	rec := &domain.Receipt{
		ID:            id,
		ReservationID: r.ID,
		Path:          relPath,
		Size:          int64(len(body)),
		MimeType:      mimePDF,
		CreatedAt:     now,
	}
	if err := g.repo.Create(ctx, rec); err != nil {
		_ = os.Remove(absPath)
		return "", fmt.Errorf("save receipt record: %w", err)
	}
	return relPath, nil
}

// GetContent resolves a handle previously returned by Generate.
func (g *Generator) GetContent(ctx context.Context, handle string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(handle))
	if handle == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, ErrInvalidHandle
	}
	if _, err := g.repo.GetByPath(ctx, filepath.ToSlash(clean)); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(g.baseDir, clean))
}

func (g *Generator) render(r *domain.Reservation) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Reservation %d", r.ID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Charging reservation receipt")
	pdf.Ln(14)

	stationName := fmt.Sprintf("#%d", r.StationID)
	if r.Station != nil && r.Station.Name != "" {
		stationName = r.Station.Name
	}
	customer := fmt.Sprintf("#%d", r.UserID)
	if r.User != nil && r.User.Name != "" {
		customer = r.User.Name
	}

	rows := [][2]string{
		{"Reservation", fmt.Sprintf("%d", r.ID)},
		{"Station", stationName},
		{"Customer", customer},
		{"Start", r.StartTime.UTC().Format("2006-01-02 15:04 MST")},
		{"End", r.EndTime.UTC().Format("2006-01-02 15:04 MST")},
		{"Duration", fmt.Sprintf("%d min", pricing.DurationMinutes(r.StartTime, r.EndTime))},
		{"Rate per minute", r.RatePerMinute.StringFixed(4)},
		{"Total", pricing.FormatPrice(r.TotalPrice, g.currency)},
		{"Issued", g.now().Format(time.RFC3339)},
	}

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range rows {
		pdf.CellFormat(50, 8, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
