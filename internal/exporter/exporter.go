package exporter

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/sngraz"
	"github.com/septivank/sngraz/internal/anomaly"
	"github.com/septivank/sngraz/internal/logging"
	"github.com/septivank/sngraz/internal/mq"
	"github.com/septivank/sngraz/tools/timeparser"
	"go.uber.org/zap"
)

// Metric names used in exported readings.
const (
	MetricConsumption  = "consumption_kwh"
	MetricMeterReading = "meter_reading_kwh"
)

// Publisher publishes one ingest message per meter
type Publisher interface {
	PublishIngestMessage(ctx context.Context, msg mq.IngestMessage) error
}

// Source is the account the exporter reads from
type Source interface {
	Refresh(ctx context.Context) error
	FetchConsumption(ctx context.Context, days int) error
	Installations() []*sngraz.Installation
}

// Exporter fetches recent readings and hands them to the metering pipeline
type Exporter struct {
	source    Source
	publisher Publisher
	out       io.Writer
	detector  *anomaly.Detector
	days      int
	now       func() time.Time
	logger    *zap.Logger
}

// Config configures an Exporter. With a nil Publisher readings are written
// as a table to Out instead.
type Config struct {
	Source    Source
	Publisher Publisher
	Out       io.Writer
	Detector  *anomaly.Detector
	Days      int
	Logger    *zap.Logger
}

// New creates a new exporter
func New(cfg Config) *Exporter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Exporter{
		source:    cfg.Source,
		publisher: cfg.Publisher,
		out:       out,
		detector:  cfg.Detector,
		days:      cfg.Days,
		now:       time.Now,
		logger:    logger,
	}
}

// Result summarizes one export run
type Result struct {
	Meters   int
	Readings int
	Messages int
}

// Run refreshes the account, fetches consumption and exports every meter
// that has data. A failing publish is logged and does not stop the run.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	var res Result

	if err := e.source.Refresh(ctx); err != nil {
		return res, fmt.Errorf("failed to refresh installations: %w", err)
	}
	if err := e.source.FetchConsumption(ctx, e.days); err != nil {
		return res, fmt.Errorf("failed to fetch consumption: %w", err)
	}

	var tw *tabwriter.Writer
	if e.publisher == nil {
		tw = tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INSTALLATION\tMETER\tNAME\tTIME\tCONSUMPTION\tREADING")
	}

	for _, inst := range e.source.Installations() {
		for _, m := range inst.Meters() {
			res.Meters++
			data := m.Data()
			if len(data) == 0 {
				continue
			}
			res.Readings += len(data)

			meterLogger := logging.WithMeter(e.logger, inst.ID(), m.ID())
			e.checkSpike(meterLogger, data)

			if tw != nil {
				writeRows(tw, inst.ID(), m, data)
				continue
			}

			msg := e.buildMessage(inst.ID(), m, data)
			reqLogger := logging.WithRequestID(meterLogger, msg.RequestID)
			if err := e.publisher.PublishIngestMessage(ctx, msg); err != nil {
				reqLogger.Error("failed to publish readings", zap.Error(err))
				continue
			}
			res.Messages++
			reqLogger.Info("readings published", zap.Int("pm_count", len(msg.Payload.PM)))
		}
	}

	if tw != nil {
		if err := tw.Flush(); err != nil {
			return res, fmt.Errorf("failed to write readings: %w", err)
		}
	}

	e.logger.Info("export finished",
		zap.Int("meters", res.Meters),
		zap.Int("readings", res.Readings),
		zap.Int("messages", res.Messages),
	)
	return res, nil
}

func (e *Exporter) checkSpike(logger *zap.Logger, data []sngraz.Reading) {
	if e.detector == nil {
		return
	}
	series := make([]float64, 0, len(data))
	for _, r := range data {
		if v, ok := r.Consumption(); ok {
			series = append(series, v)
		}
	}
	if isAnomaly, reason := e.detector.CheckLatest(series); isAnomaly {
		logger.Warn("anomaly detected", zap.String("reason", reason))
	}
}

// Fingerprint identifies a meter on the ingest exchange.
func Fingerprint(installationID, meterID int) string {
	return fmt.Sprintf("sngraz-%d-%d", installationID, meterID)
}

func (e *Exporter) buildMessage(installationID int, m *sngraz.Meter, data []sngraz.Reading) mq.IngestMessage {
	msg := mq.IngestMessage{
		RequestID:         uuid.New().String(),
		ClientFingerprint: Fingerprint(installationID, m.ID()),
		UserAgent:         "sngraz/" + sngraz.Version,
		ReceivedAt:        e.now().UTC(),
	}
	for _, r := range data {
		date := timeparser.FormatMeterTimestamp(r.ReadTime)
		if v, ok := r.Consumption(); ok {
			msg.Payload.PM = append(msg.Payload.PM, mq.PMData{Date: date, Data: formatValue(v), Name: MetricConsumption})
		}
		if v, ok := r.MeterReading(); ok {
			msg.Payload.PM = append(msg.Payload.PM, mq.PMData{Date: date, Data: formatValue(v), Name: MetricMeterReading})
		}
	}
	return msg
}

func writeRows(w io.Writer, installationID int, m *sngraz.Meter, data []sngraz.Reading) {
	for _, r := range data {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			installationID, m.ID(), m.Name(),
			r.ReadTime.Format(time.RFC3339),
			optional(r.Consumption()),
			optional(r.MeterReading()),
		)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func optional(v float64, ok bool) string {
	if !ok {
		return "-"
	}
	return formatValue(v)
}
