package gsync

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// Row layout: A id, B nombre, C email, D horario, E descripción, F estado,
// G motivo de cancelación, H creado.
const (
	rowColumns   = "A:H"
	statusColumn = "F"
	reasonColumn = "G"
	sheetTime    = "2006-01-02 15:04"
)

var rowNumber = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsConfig configures the spreadsheet mirror.
type SheetsConfig struct {
	SpreadsheetID string
	SheetName     string
	Location      *time.Location
}

// SheetsClient appends one row per turno and keeps its status column current.
type SheetsClient struct {
	srv    *sheets.Service
	cfg    SheetsConfig
	logger *logging.Logger
}

// NewSheetsClient builds a client. Credentials come in through opts.
func NewSheetsClient(ctx context.Context, cfg SheetsConfig, logger *logging.Logger, opts ...option.ClientOption) (*SheetsClient, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("gsync: spreadsheet id is required")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Turnos"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsync: create sheets service: %w", err)
	}
	return &SheetsClient{srv: srv, cfg: cfg, logger: logger}, nil
}

// AppendRow adds the turno and returns the A1 range that was written.
func (c *SheetsClient) AppendRow(ctx context.Context, appt appointments.Appointment) (string, error) {
	row := []interface{}{
		appt.ID,
		appt.Name,
		appt.Email,
		appt.ScheduledAt.In(c.cfg.Location).Format(sheetTime),
		appt.Description,
		appt.Status.Label(),
		appt.CancelReason,
		appt.CreatedAt.In(c.cfg.Location).Format(sheetTime),
	}
	resp, err := c.srv.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, c.a1(rowColumns), &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gsync: append row: %w", err)
	}
	if resp.Updates == nil || resp.Updates.UpdatedRange == "" {
		return "", errors.New("gsync: append row: no updated range returned")
	}
	c.logger.Info("sheet row appended", "appointment_id", appt.ID, "range", resp.Updates.UpdatedRange)
	return resp.Updates.UpdatedRange, nil
}

// UpdateStatus rewrites the status and reason cells of the row in rowRef.
func (c *SheetsClient) UpdateStatus(ctx context.Context, rowRef string, status appointments.Status, reason string) error {
	row, err := RowFromRange(rowRef)
	if err != nil {
		return err
	}
	target := c.a1(fmt.Sprintf("%s%d:%s%d", statusColumn, row, reasonColumn, row))
	_, err = c.srv.Spreadsheets.Values.Update(c.cfg.SpreadsheetID, target, &sheets.ValueRange{
		Values: [][]interface{}{{status.Label(), reason}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gsync: update status at %s: %w", target, err)
	}
	c.logger.Info("sheet status updated", "range", target, "status", status)
	return nil
}

func (c *SheetsClient) a1(cells string) string {
	name := c.cfg.SheetName
	if strings.ContainsAny(name, " '!") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + cells
}

// RowFromRange extracts the first row number from an A1 range such as
// "Turnos!A5:H5" or "'Hoja 1'!A12:H12".
func RowFromRange(rowRef string) (int, error) {
	idx := strings.LastIndex(rowRef, "!")
	if idx < 0 {
		return 0, fmt.Errorf("gsync: malformed row reference %q", rowRef)
	}
	m := rowNumber.FindStringSubmatch(rowRef[idx:])
	if m == nil {
		return 0, fmt.Errorf("gsync: malformed row reference %q", rowRef)
	}
	return strconv.Atoi(m[1])
}

var _ appointments.SheetSync = (*SheetsClient)(nil)
