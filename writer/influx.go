// Package writer persists validated market data to InfluxDB under the
// canonical identity scheme and hosts the naming migration tooling.
package writer

import (
	"fmt"
	"strings"

	client "github.com/influxdata/influxdb1-client/v2"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
)

// Measurement is the single measurement every series lives under.
const Measurement = "market_data"

// InfluxClient is the narrow sink surface the writer needs. The real
// influxdb1 client satisfies it; tests substitute a fake.
type InfluxClient interface {
	Write(bp client.BatchPoints) error
	Query(q client.Query) (*client.Response, error)
	Close() error
}

// Writer batches points and flushes them to the sink when the batch
// reaches the configured size.
type Writer struct {
	sink      InfluxClient
	database  string
	batchSize int
	pending   []*client.Point
	log       *logger.Log
}

// NewWriter connects to InfluxDB using the provided configuration.
func NewWriter(cfg appconfig.InfluxDBConfig) (*Writer, error) {
	sink, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("influxdb client: %w", err)
	}
	return NewWriterWithSink(sink, cfg.Database, cfg.BatchSize), nil
}

// NewWriterWithSink wires a writer onto an existing sink.
func NewWriterWithSink(sink InfluxClient, database string, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Writer{
		sink:      sink,
		database:  database,
		batchSize: batchSize,
		log:       logger.GetLogger(),
	}
}

// tagReplacer escapes the line-protocol delimiters the way the protocol
// itself does. Escaping rather than folding keeps the mapping injective:
// distinct raw values never collapse onto the same tag value.
var tagReplacer = strings.NewReplacer(`\`, `\\`, ",", `\,`, " ", `\ `, "=", `\=`)

func sanitizeTag(v string) string {
	return tagReplacer.Replace(v)
}

// Write appends one series' candles to the batch, flushing whenever the
// batch reaches capacity. The returned count covers only points accepted by
// the sink during this call; buffered points are counted by a later flush.
func (w *Writer) Write(records []models.Candle, symbol, exchange string, kind models.DataKind, period string) (int, error) {
	tags := map[string]string{
		"symbol":    sanitizeTag(symbol),
		"exchange":  sanitizeTag(exchange),
		"data_kind": sanitizeTag(string(kind)),
		"period":    sanitizeTag(period),
	}

	written := 0
	for _, c := range records {
		fields := map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		}
		pt, err := client.NewPoint(Measurement, tags, fields, c.Time)
		if err != nil {
			return written, fmt.Errorf("build point for %s: %w", symbol, err)
		}
		w.pending = append(w.pending, pt)

		if len(w.pending) >= w.batchSize {
			n, err := w.Flush()
			written += n
			if err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush writes all buffered points. The buffer is empty when Flush
// returns, whether or not the sink accepted the batch.
func (w *Writer) Flush() (int, error) {
	if len(w.pending) == 0 {
		return 0, nil
	}
	n := len(w.pending)
	points := w.pending
	w.pending = nil

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  w.database,
		Precision: "ms",
	})
	if err != nil {
		return 0, fmt.Errorf("batch points: %w", err)
	}
	bp.AddPoints(points)

	if err := w.sink.Write(bp); err != nil {
		w.log.WithComponent("influx_writer").WithError(err).WithFields(logger.Fields{
			"points": n,
		}).Error("batch write failed")
		return 0, fmt.Errorf("influx write: %w", err)
	}

	logger.IncrementWritten(n)
	w.log.WithComponent("influx_writer").WithFields(logger.Fields{
		"points": n,
	}).Debug("batch written")
	return n, nil
}

// Pending reports the number of buffered points.
func (w *Writer) Pending() int {
	return len(w.pending)
}

// Close flushes buffered points and closes the sink.
func (w *Writer) Close() error {
	_, flushErr := w.Flush()
	if err := w.sink.Close(); err != nil {
		return err
	}
	return flushErr
}
