package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"

	"github.com/wolfman30/turnos-ai/cmd/mainconfig"
	"github.com/wolfman30/turnos-ai/internal/appointments"
	appconfig "github.com/wolfman30/turnos-ai/internal/config"
	"github.com/wolfman30/turnos-ai/internal/gsync"
	"github.com/wolfman30/turnos-ai/internal/notify"
	"github.com/wolfman30/turnos-ai/internal/observability/metrics"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// BuildAppointmentService wires the lifecycle manager with whichever
// collaborators are configured. A collaborator that fails to build is left
// out and logged; the service still runs without it.
func BuildAppointmentService(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, m *metrics.BookingMetrics, logger *logging.Logger) (*appointments.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var repo appointments.Repository
	if pool != nil {
		repo = appointments.NewPostgresRepository(pool)
	} else {
		logger.Warn("no database configured; appointments are kept in memory")
		repo = appointments.NewInMemoryRepository()
	}

	sender, err := BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		BaseURL:    cfg.PublicBaseURL,
		ClinicName: cfg.ClinicName,
		Location:   cfg.Location(),
	}, m, logger)

	opts := []appointments.Option{
		appointments.WithNotifier(dispatcher),
		appointments.WithMetrics(m),
	}
	if cfg.GoogleSyncEnabled() {
		googleOpts := GoogleClientOptions(cfg)
		if cfg.GoogleCalendarID != "" {
			cal, err := gsync.NewCalendarClient(ctx, gsync.CalendarConfig{
				CalendarID: cfg.GoogleCalendarID,
				Duration:   cfg.AppointmentDuration,
				Location:   cfg.Location(),
			}, logger, googleOpts...)
			if err != nil {
				logger.Warn("google calendar sync disabled", "error", err)
			} else {
				opts = append(opts, appointments.WithCalendar(cal))
			}
		}
		if cfg.GoogleSheetID != "" {
			sheet, err := gsync.NewSheetsClient(ctx, gsync.SheetsConfig{
				SpreadsheetID: cfg.GoogleSheetID,
				SheetName:     cfg.GoogleSheetName,
				Location:      cfg.Location(),
			}, logger, googleOpts...)
			if err != nil {
				logger.Warn("google sheets sync disabled", "error", err)
			} else {
				opts = append(opts, appointments.WithSheet(sheet))
			}
		}
	}

	return appointments.NewService(repo, logger, opts...), nil
}

// BuildEmailSender picks the transport named by EMAIL_PROVIDER. The stub
// sender only logs.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	switch cfg.EmailProvider {
	case "", "stub":
		return notify.NewStubEmailSender(logger), nil
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return nil, errors.New("SENDGRID_API_KEY is required for the sendgrid email provider")
		}
		return sender, nil
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}
}

// GoogleClientOptions returns the service-account credentials shared by the
// calendar and sheets clients.
func GoogleClientOptions(cfg *appconfig.Config) []option.ClientOption {
	if !cfg.GoogleSyncEnabled() {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.GoogleCredentialsFile)}
}
