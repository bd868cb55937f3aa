// Package assets loads the tracked-instrument list from CSV and resolves
// provider names against the known provider set. A malformed row never
// stops a run: it is skipped with a warning so the remaining assets still
// collect.
package assets

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"candleflow/logger"
	"candleflow/models"
)

// Row is one parsed CSV line before provider resolution.
type Row struct {
	Symbol  string
	OHLC    []string
	Funding []string
	LineNum int
}

// ParseFile reads the asset CSV. Expected header:
// symbol,ohlc_exchanges,funding_rate_exchanges. Provider lists are joined
// with '+'; lines starting with '#' are comments.
func ParseFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open assets file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse assets file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("assets file %s is empty", path)
	}

	header := records[0]
	if len(header) < 3 || !strings.EqualFold(strings.TrimSpace(header[0]), "symbol") {
		return nil, fmt.Errorf("assets file %s: unexpected header %v", path, header)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("assets file %s line %d: expected 3 columns, got %d", path, i+2, len(rec))
		}
		rows = append(rows, Row{
			Symbol:  strings.TrimSpace(rec[0]),
			OHLC:    splitProviders(rec[1]),
			Funding: splitProviders(rec[2]),
			LineNum: i + 2,
		})
	}
	return rows, nil
}

func splitProviders(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	parts := strings.Split(field, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// Resolve validates rows against the known provider set. Rows naming an
// unknown provider or duplicating a symbol are skipped and reported in the
// returned error slice; valid rows are unaffected.
func Resolve(rows []Row) (map[string]models.AssetSpec, []error) {
	log := logger.GetLogger().WithComponent("assets")
	specs := make(map[string]models.AssetSpec, len(rows))
	var errs []error

	for _, row := range rows {
		if row.Symbol == "" {
			errs = append(errs, fmt.Errorf("line %d: empty symbol", row.LineNum))
			continue
		}
		if _, dup := specs[row.Symbol]; dup {
			err := fmt.Errorf("line %d: duplicate symbol %s", row.LineNum, row.Symbol)
			log.WithFields(logger.Fields{"symbol": row.Symbol, "line": row.LineNum}).Warn("duplicate symbol skipped")
			errs = append(errs, err)
			continue
		}

		ohlc, err := resolveProviders(row.OHLC)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d (%s): %w", row.LineNum, row.Symbol, err))
			log.WithError(err).WithFields(logger.Fields{"symbol": row.Symbol}).Warn("asset row skipped")
			continue
		}
		funding, err := resolveProviders(row.Funding)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d (%s): %w", row.LineNum, row.Symbol, err))
			log.WithError(err).WithFields(logger.Fields{"symbol": row.Symbol}).Warn("asset row skipped")
			continue
		}

		specs[row.Symbol] = models.AssetSpec{Symbol: row.Symbol, OHLC: ohlc, Funding: funding}
	}
	return specs, errs
}

func resolveProviders(names []string) ([]models.Provider, error) {
	out := make([]models.Provider, 0, len(names))
	for _, name := range names {
		if !models.KnownProvider(name) {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		out = append(out, models.Provider(name))
	}
	return out, nil
}

// Load parses and resolves in one call, logging resolution problems.
func Load(path string) (map[string]models.AssetSpec, error) {
	rows, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	specs, errs := Resolve(rows)
	if len(errs) > 0 {
		logger.GetLogger().WithComponent("assets").WithFields(logger.Fields{
			"skipped": len(errs),
			"loaded":  len(specs),
		}).Warn("some asset rows were skipped")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("assets file %s: no usable rows", path)
	}
	return specs, nil
}
