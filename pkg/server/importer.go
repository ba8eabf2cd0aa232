package server

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/retention"
	"github.com/robotnikz/sunflow/pkg/types"
)

const maxUploadSize = 16 << 20

var numericCleanPattern = regexp.MustCompile(`[^\d.,-]`)

// csvTimeLayouts covers the timestamp formats inverter and meter exports
// commonly use.
var csvTimeLayouts = []string{
	timeLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	dateLayout,
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
}

func parseCSVTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseCSVValue extracts a number from a CSV cell, tolerating units, thousand
// separators and a decimal comma. Unparseable cells count as 0.
func parseCSVValue(v string) float64 {
	v = numericCleanPattern.ReplaceAllString(strings.TrimSpace(v), "")
	v = strings.Replace(v, ",", ".", 1)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	// fall back to the longest parseable prefix ("1.234.56" -> 1.234)
	for i := len(v) - 1; i > 0; i-- {
		if f, err := strconv.ParseFloat(v[:i], 64); err == nil {
			return f
		}
	}
	return 0
}

// readCSV parses the upload into header-keyed records. Short rows are padded
// so a ragged export does not abort the import.
func readCSV(f io.Reader) ([]string, []map[string]string, error) {
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, err
	}
	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	return header, records, nil
}

func (s *Server) uploadedCSV(w http.ResponseWriter, r *http.Request) ([]string, []map[string]string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSONError(w, "invalid multipart upload", http.StatusBadRequest)
		return nil, nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "no file uploaded", http.StatusBadRequest)
		return nil, nil, false
	}
	defer file.Close()

	header, records, err := readCSV(file)
	if err != nil {
		writeJSONError(w, "CSV parsing failed", http.StatusBadRequest)
		return nil, nil, false
	}
	return header, records, true
}

// energyMappingKeys mark a summary-shaped import (hourly Wh quantities)
// rather than a raw power log.
var energyMappingKeys = []string{"energy_pv", "energy_production", "energy_load", "production_wh"}

// handleImportCSV ingests historical data. Summary-shaped files wipe and
// replace whole calendar years across both tiers so imported hours can never
// double-count against live samples; power-shaped files replace just the day
// range the file covers. Lifetime totals are recalibrated afterwards.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, records, ok := s.uploadedCSV(w, r)
	if !ok {
		return
	}

	rawMapping := r.FormValue("mapping")
	if rawMapping == "" {
		writeJSONError(w, "missing mapping", http.StatusBadRequest)
		return
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(rawMapping), &mapping); err != nil {
		writeJSONError(w, "invalid mapping JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(mapping["timestamp"]) == "" {
		writeJSONError(w, "mapping is missing a timestamp column", http.StatusBadRequest)
		return
	}

	type datedRecord struct {
		ts  time.Time
		rec map[string]string
	}
	rows := make([]datedRecord, 0, len(records))
	var minTS, maxTS time.Time
	for _, rec := range records {
		ts, ok := parseCSVTime(rec[mapping["timestamp"]])
		if !ok {
			continue
		}
		if minTS.IsZero() || ts.Before(minTS) {
			minTS = ts
		}
		if maxTS.IsZero() || ts.After(maxTS) {
			maxTS = ts
		}
		rows = append(rows, datedRecord{ts: ts, rec: rec})
	}
	if len(rows) == 0 {
		writeJSON(w, struct {
			Success  bool `json:"success"`
			Imported int  `json:"imported"`
		}{Success: true, Imported: 0})
		return
	}

	energyShaped := false
	for _, k := range energyMappingKeys {
		if _, ok := mapping[k]; ok {
			energyShaped = true
			break
		}
	}

	val := func(rec map[string]string, key string) float64 {
		col, ok := mapping[key]
		if !ok || col == "" {
			return 0
		}
		return parseCSVValue(rec[col])
	}

	if energyShaped {
		summaries := make([]types.EnergySummary, 0, len(rows))
		for _, dr := range rows {
			summaries = append(summaries, types.EnergySummary{
				TSHourStart:        dr.ts,
				ProductionWh:       val(dr.rec, "energy_pv"),
				LoadWh:             val(dr.rec, "energy_load"),
				GridConsumptionWh:  val(dr.rec, "energy_grid_in"),
				GridFeedInWh:       val(dr.rec, "energy_grid_out"),
				BatteryChargeWh:    val(dr.rec, "energy_bat_charge"),
				BatteryDischargeWh: val(dr.rec, "energy_bat_discharge"),
			})
		}
		var years []int
		for y := minTS.Year(); y <= maxTS.Year(); y++ {
			years = append(years, y)
		}
		if err := s.storage.ReplaceSummaryYears(ctx, years, summaries); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "summary import failed", "error", err)
			writeJSONError(w, "import failed", http.StatusInternalServerError)
			return
		}
	} else {
		samples := make([]types.PowerSample, 0, len(rows))
		for _, dr := range rows {
			samples = append(samples, types.PowerSample{
				Timestamp: dr.ts,
				SolarW:    val(dr.rec, "power_pv"),
				HomeW:     val(dr.rec, "power_load"),
				GridW:     val(dr.rec, "power_grid"),
				BatteryW:  val(dr.rec, "power_battery"),
				SOC:       val(dr.rec, "soc"),
				Status:    types.StatusNormal,
			})
		}
		start := truncateDay(minTS)
		end := truncateDay(maxTS).AddDate(0, 0, 1).Add(-time.Second)
		if err := s.storage.ReplacePowerSamples(ctx, start, end, samples); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "power import failed", "error", err)
			writeJSONError(w, "import failed", http.StatusInternalServerError)
			return
		}
	}

	if err := retention.Calibrate(ctx, s.storage, s.config, s.clk.Now()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "post-import calibration failed", "error", err)
	}

	log.Ctx(ctx).InfoContext(ctx, "csv import finished",
		"rows", len(rows), "energyShaped", energyShaped)
	writeJSON(w, struct {
		Success  bool `json:"success"`
		Imported int  `json:"imported"`
	}{Success: true, Imported: len(rows)})
}

// handlePreviewCSV returns the headers and the first rows so the client can
// build a column mapping.
func (s *Server) handlePreviewCSV(w http.ResponseWriter, r *http.Request) {
	header, records, ok := s.uploadedCSV(w, r)
	if !ok {
		return
	}
	if len(records) > 5 {
		records = records[:5]
	}
	writeJSON(w, struct {
		Headers []string            `json:"headers"`
		Preview []map[string]string `json:"preview"`
	}{Headers: header, Preview: records})
}
