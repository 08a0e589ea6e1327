package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stormsignal/weather-notify/internal/models"
	"github.com/stormsignal/weather-notify/internal/repository"
)

// Result summarizes one bulk import run.
type Result struct {
	EventsImported int64
	AreasImported  int
	RowsSkipped    int
}

// columns the delimited file must carry, matched against the header
// row case-insensitively.
var requiredColumns = []string{
	"event_id", "event_type", "state", "state_fips",
	"county", "county_fips", "begin_year", "begin_month",
	"end_year", "end_month",
}

// Importer loads the cleaned storm-events file into StormEvent history
// rows and derives the AreaReference table from the FIPS columns. It
// is the only writer of reference data; the dispatch cycle never
// touches it.
type Importer struct {
	areas     repository.AreaRepository
	batchSize int
}

func New(areas repository.AreaRepository) *Importer {
	return &Importer{
		areas:     areas,
		batchSize: 5000,
	}
}

// Run consumes the whole file. Malformed rows are logged and skipped;
// only unreadable input or storage failure aborts the import.
func (im *Importer) Run(ctx context.Context, r io.Reader) (Result, error) {
	var res Result

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("error reading header row: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return res, err
	}

	// Duplicate (state, county) pairs collapse into one reference row.
	seenAreas := map[string]bool{}
	batch := make([]models.StormEvent, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.areas.UpsertStormEvents(ctx, batch)
		if err != nil {
			return err
		}
		res.EventsImported += n
		batch = batch[:0]
		return nil
	}

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("skipping unreadable row", "line", line, "error", err)
			res.RowsSkipped++
			continue
		}

		ev, ref, err := parseRow(record, cols)
		if err != nil {
			slog.Warn("skipping malformed row", "line", line, "error", err)
			res.RowsSkipped++
			continue
		}

		areaKey := strings.ToLower(ref.State) + "|" + strings.ToLower(ref.County)
		if !seenAreas[areaKey] {
			if err := im.areas.UpsertAreaRef(ctx, ref); err != nil {
				return res, fmt.Errorf("error storing area reference: %w", err)
			}
			seenAreas[areaKey] = true
			res.AreasImported++
		}

		batch = append(batch, ev)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return res, fmt.Errorf("error storing storm events: %w", err)
			}
		}
	}

	if err := flush(); err != nil {
		return res, fmt.Errorf("error storing storm events: %w", err)
	}
	return res, nil
}

func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range requiredColumns {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("input is missing required column %q", want)
		}
	}
	return cols, nil
}

func parseRow(record []string, cols map[string]int) (models.StormEvent, models.AreaReference, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	eventID, err := strconv.ParseInt(field("event_id"), 10, 64)
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, fmt.Errorf("bad event_id %q", field("event_id"))
	}

	intField := func(name string) (int, error) {
		v, err := strconv.Atoi(field(name))
		if err != nil {
			return 0, fmt.Errorf("bad %s %q", name, field(name))
		}
		return v, nil
	}

	beginYear, err := intField("begin_year")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}
	beginMonth, err := intField("begin_month")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}
	endYear, err := intField("end_year")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}
	endMonth, err := intField("end_month")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}
	stateFips, err := intField("state_fips")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}
	countyFips, err := intField("county_fips")
	if err != nil {
		return models.StormEvent{}, models.AreaReference{}, err
	}

	state := field("state")
	county := field("county")
	if state == "" || county == "" {
		return models.StormEvent{}, models.AreaReference{}, fmt.Errorf("missing state or county")
	}

	ev := models.StormEvent{
		EventID:    eventID,
		EventType:  field("event_type"),
		State:      state,
		County:     county,
		BeginYear:  beginYear,
		BeginMonth: beginMonth,
		EndYear:    endYear,
		EndMonth:   endMonth,
	}
	ref := models.AreaReference{
		State:      state,
		County:     county,
		StateCode:  fmt.Sprintf("%02d", stateFips),
		CountyCode: fmt.Sprintf("%03d", countyFips),
		AreaCode:   fmt.Sprintf("%02d%03d", stateFips, countyFips),
	}
	return ev, ref, nil
}
