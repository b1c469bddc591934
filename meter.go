package sngraz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/septivank/sngraz/tools/timeparser"
	"go.uber.org/zap"
)

const (
	meterMetaDataPath = "getMeterReadingMetaData"
	meterReadingPath  = "getMeterReading"

	unitKWH    = "KWH"
	scanWindow = 7 // days
)

// Mode is the operational state the portal reports for a meter.
type Mode string

const (
	// ModeDaily meters (IMS) deliver one reading per day.
	ModeDaily Mode = "OptMiddle"
	// ModeQuarterHourly meters (IME) deliver a reading every 15 minutes.
	ModeQuarterHourly Mode = "OptIn"
)

// Reading intervals understood by getMeterReading.
const (
	IntervalDaily         = "Daily"
	IntervalQuarterHourly = "QuarterHourly"
)

// Sample is a value with the time it was read.
type Sample struct {
	Value float64
	Time  time.Time
}

// Meter is a single metering point of an installation.
type Meter struct {
	id             int
	installationID int
	name           string
	shortName      string
	mode           Mode

	// session is borrowed from the owning Account.
	session *Session
	logger  *zap.Logger

	mu               sync.Mutex
	data             []Reading
	firstReading     *float64
	firstReadingDate *time.Time
	lastConsumption  *Sample
	lastReading      *Sample
}

func newMeter(rec meterPointRecord, installationID int, session *Session) *Meter {
	return &Meter{
		id:             rec.MeterPointID,
		installationID: installationID,
		name:           rec.Name,
		shortName:      rec.ShortName,
		mode:           Mode(rec.OptState.CurrentOptState),
		session:        session,
		logger: session.logger.With(
			zap.Int("installation_id", installationID),
			zap.Int("meter_id", rec.MeterPointID),
		),
	}
}

// ID is the meter point id.
func (m *Meter) ID() int { return m.id }

// InstallationID is the id of the installation the meter belongs to.
func (m *Meter) InstallationID() int { return m.installationID }

// Name is the meter point name, usually the AT... metering point number.
func (m *Meter) Name() string { return m.name }

// ShortName is the label the customer gave the meter in the portal.
func (m *Meter) ShortName() string { return m.shortName }

// Mode is the meter's reported operational state.
func (m *Meter) Mode() Mode { return m.mode }

// Data returns the readings stored by the last successful FetchConsumption,
// or nil if there was none.
func (m *Meter) Data() []Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	res := make([]Reading, len(m.data))
	copy(res, m.data)
	return res
}

// LastConsumption returns the newest consumption value seen by this meter.
func (m *Meter) LastConsumption() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastConsumption == nil {
		return Sample{}, false
	}
	return *m.lastConsumption, true
}

// LastReading returns the newest absolute meter reading seen by this meter.
func (m *Meter) LastReading() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastReading == nil {
		return Sample{}, false
	}
	return *m.lastReading, true
}

// FetchConsumption fetches the last days of readings and stores them as the
// meter's current data. When no data is available the previous data is kept.
func (m *Meter) FetchConsumption(ctx context.Context, days int) error {
	start, end := m.window(days)
	readings, ok, err := m.fetchRange(ctx, start, end)
	if err != nil || !ok {
		return err
	}

	m.mu.Lock()
	m.data = readings
	m.mu.Unlock()
	return nil
}

// HistoricData fetches the last days of readings without touching the
// meter's current data. The last value trackers are still updated.
func (m *Meter) HistoricData(ctx context.Context, days int) ([]Reading, bool, error) {
	start, end := m.window(days)
	return m.fetchRange(ctx, start, end)
}

// window returns [now-days, now] with now floored to the hour in the
// configured location.
func (m *Meter) window(days int) (time.Time, time.Time) {
	loc := m.session.location
	now := m.session.clock.Now().In(loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	return end.AddDate(0, 0, -days), end
}

// FirstReadingDate returns the earliest date the server has readings for.
// The result is cached once resolved.
func (m *Meter) FirstReadingDate(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	if m.firstReadingDate != nil {
		d := *m.firstReadingDate
		m.mu.Unlock()
		return d, true, nil
	}
	m.mu.Unlock()

	resp, err := m.session.Query(ctx, meterMetaDataPath, meterMetaDataRequest{MeterPointID: m.id})
	if err != nil {
		return time.Time{}, false, err
	}
	if resp.Kind != KindObject {
		m.logger.Error("could not get meter meta data: API query failed", zap.Stringer("kind", resp.Kind))
		return time.Time{}, false, nil
	}

	var meta meterMetaDataResponse
	if err := resp.Decode(&meta); err != nil {
		return time.Time{}, false, err
	}
	if meta.ReadingsAvailableSince == "" {
		m.logger.Warn("meter meta data has no readingsAvailableSince")
		return time.Time{}, false, nil
	}

	// The server omits the zone; assume ours.
	t, err := timeparser.ParseLocal(meta.ReadingsAvailableSince, m.session.location)
	if err != nil {
		m.logger.Warn("could not parse readingsAvailableSince", zap.Error(err))
		return time.Time{}, false, nil
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, t.Second(), t.Nanosecond(), t.Location())

	m.mu.Lock()
	m.firstReadingDate = &t
	m.mu.Unlock()
	return t, true, nil
}

// interval picks the request interval for the meter's mode. Daily meters have
// their end time moved to midnight.
func (m *Meter) interval(end time.Time) (string, time.Time, bool) {
	switch m.mode {
	case ModeDaily:
		return IntervalDaily, time.Date(end.Year(), end.Month(), end.Day(), 0, 0, end.Second(), end.Nanosecond(), end.Location()), true
	case ModeQuarterHourly:
		return IntervalQuarterHourly, end, true
	default:
		return "", end, false
	}
}

// fetchRange requests readings between start and end. ok is false when no
// data is available; that is not an error.
func (m *Meter) fetchRange(ctx context.Context, start, end time.Time) ([]Reading, bool, error) {
	interval, end, ok := m.interval(end)
	if !ok {
		// Most likely OptOut.
		m.logger.Warn("meter is neither OptIn nor OptMiddle, no data available", zap.String("mode", string(m.mode)))
		return nil, false, nil
	}

	first, ok, err := m.FirstReadingDate(ctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		m.logger.Warn("no first reading could be found")
		return nil, false, nil
	}
	if start.Before(first) {
		start = first
	}

	resp, err := m.session.Query(ctx, meterReadingPath, meterReadingRequest{
		UnitOfConsump: unitKWH,
		Interval:      interval,
		MeterPointID:  m.id,
		FromDate:      timeparser.FormatISO(start),
		ToDate:        timeparser.FormatISO(end),
	})
	if err != nil {
		return nil, false, err
	}
	if resp.Kind != KindObject {
		m.logger.Error("could not get meter readings: API query failed", zap.Stringer("kind", resp.Kind))
		return nil, false, nil
	}

	var body meterReadingResponse
	if err := resp.Decode(&body); err != nil {
		return nil, false, err
	}
	if len(body.Readings) == 0 {
		m.logger.Error("could not get meter readings: empty reading response")
		return nil, false, nil
	}

	result := make([]Reading, 0, len(body.Readings))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range body.Readings {
		// Estimated values are probably wrong; only Valid ones count.
		values := validValues(raw.ReadingValues)
		if len(values) == 0 {
			continue
		}

		readTime, err := timeparser.ParseReadTime(raw.ReadTime, m.session.location)
		if err != nil {
			return nil, false, fmt.Errorf("%w: meter %d: %v", ErrProtocol, m.id, err)
		}

		rec := Reading{
			ReadTime:  readTime,
			Values:    values,
			RawValues: raw.ReadingValues,
		}
		if v, ok := rec.Consumption(); ok {
			m.lastConsumption = newer(m.lastConsumption, v, readTime)
		}
		if v, ok := rec.MeterReading(); ok {
			m.lastReading = newer(m.lastReading, v, readTime)
		}
		result = append(result, rec)
	}
	return result, true, nil
}

// newer returns a sample for (v, t) when t is after cur, cur otherwise.
func newer(cur *Sample, v float64, t time.Time) *Sample {
	if cur != nil && !t.After(cur.Time) {
		return cur
	}
	return &Sample{Value: v, Time: t}
}

// FirstReading returns the oldest absolute meter reading. It scans forward
// from the first reading date in 7 day windows until one is not empty; the
// scan stops after the configured maximum number of windows. The result is
// cached once resolved.
func (m *Meter) FirstReading(ctx context.Context) (float64, bool, error) {
	m.mu.Lock()
	if m.firstReading != nil {
		v := *m.firstReading
		m.mu.Unlock()
		return v, true, nil
	}
	m.mu.Unlock()

	start, ok, err := m.FirstReadingDate(ctx)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		m.logger.Warn("no first reading could be found")
		return 0, false, nil
	}
	end := start.AddDate(0, 0, scanWindow)

	var readings []Reading
	for windows := 0; len(readings) == 0; windows++ {
		if limit := m.session.maxScanWindows; limit > 0 && windows >= limit {
			m.logger.Warn("no readings found within scan limit", zap.Int("windows", limit))
			return 0, false, nil
		}

		readings, ok, err = m.fetchRange(ctx, start, end)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			m.logger.Warn("no readings available")
			return 0, false, nil
		}

		start = start.AddDate(0, 0, scanWindow)
		end = start.AddDate(0, 0, scanWindow)
	}

	v, ok := readings[0].MeterReading()
	if !ok {
		m.logger.Warn("first reading does not contain a meter reading value")
		return 0, false, nil
	}

	m.mu.Lock()
	m.firstReading = &v
	m.mu.Unlock()
	return v, true, nil
}
