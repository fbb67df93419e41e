package aggregation

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/observability"
	"github.com/ethpandaops/fpt/pkg/storage"
)

// ErrExportNameRequired is returned when an export file name is empty
var ErrExportNameRequired = errors.New("export file names are required")

// ExportConfig names the export files under the output root
type ExportConfig struct {
	CSVName     string `yaml:"csvName" default:"final.csv"`
	ParquetName string `yaml:"parquetName" default:"final.parquet"`
}

// Validate checks the configuration
func (c *ExportConfig) Validate() error {
	if c.CSVName == "" || c.ParquetName == "" {
		return ErrExportNameRequired
	}

	return nil
}

// ParquetRow is the columnar layout of a FeatureRow. SnapshotDate is days since the Unix epoch.
type ParquetRow struct {
	SnapshotDate  int32  `parquet:"snapshot_date,date"`
	UserID        int64  `parquet:"user_id"`
	ValueProp     string `parquet:"value_prop"`
	ViewCount     int64  `parquet:"view_count"`
	ClickOccurred bool   `parquet:"click_occurred"`
	TapCount      int64  `parquet:"tap_count"`
	PaymentCount  int64  `parquet:"payment_count"`
	PaymentTotal  int64  `parquet:"payment_total"`
}

// Time returns the snapshot date as midnight UTC
func (p ParquetRow) Time() time.Time {
	return time.Unix(int64(p.SnapshotDate)*86400, 0).UTC()
}

// Exporter writes the feature table as CSV and Parquet under an output root
type Exporter struct {
	log   logrus.FieldLogger
	store storage.Store
	root  string
	cfg   ExportConfig
}

// NewExporter creates an exporter writing under root
func NewExporter(log logrus.FieldLogger, store storage.Store, root string, cfg ExportConfig) *Exporter {
	if cfg.CSVName == "" {
		cfg.CSVName = "final.csv"
	}

	if cfg.ParquetName == "" {
		cfg.ParquetName = "final.parquet"
	}

	return &Exporter{
		log:   log.WithField("service", "exporter"),
		store: store,
		root:  root,
		cfg:   cfg,
	}
}

// Export replaces both exports with rows and returns their locations
func (e *Exporter) Export(ctx context.Context, rows []FeatureRow) (csvLocation, parquetLocation string, err error) {
	csvBody, err := EncodeCSV(rows)
	if err != nil {
		observability.RecordExport("csv", "failed")
		return "", "", err
	}

	parquetBody, err := EncodeParquet(rows)
	if err != nil {
		observability.RecordExport("parquet", "failed")
		return "", "", err
	}

	csvLocation = storage.Join(e.root, e.cfg.CSVName)
	parquetLocation = storage.Join(e.root, e.cfg.ParquetName)

	prevCSV, hadCSV, err := e.previous(ctx, csvLocation)
	if err != nil {
		observability.RecordExport("csv", "failed")
		return "", "", err
	}

	if err := e.store.Put(ctx, csvLocation, csvBody); err != nil {
		observability.RecordExport("csv", "failed")
		return "", "", fmt.Errorf("failed to write csv export: %w", err)
	}

	observability.RecordExport("csv", "success")

	if err := e.store.Put(ctx, parquetLocation, parquetBody); err != nil {
		observability.RecordExport("parquet", "failed")

		writeErr := fmt.Errorf("failed to write parquet export: %w", err)
		if hadCSV {
			if restoreErr := e.store.Put(context.WithoutCancel(ctx), csvLocation, prevCSV); restoreErr != nil {
				return "", "", errors.Join(writeErr, fmt.Errorf("failed to restore previous csv export: %w", restoreErr))
			}

			e.log.WithField("csv", csvLocation).Warn("Restored previous csv export after parquet write failed")
		}

		return "", "", writeErr
	}

	observability.RecordExport("parquet", "success")
	observability.FeatureRows.Set(float64(len(rows)))

	e.log.WithFields(logrus.Fields{
		"rows":    len(rows),
		"csv":     csvLocation,
		"parquet": parquetLocation,
	}).Info("Exported feature table")

	return csvLocation, parquetLocation, nil
}

// previous returns the current object at location so a half-finished export can be rolled back
func (e *Exporter) previous(ctx context.Context, location string) ([]byte, bool, error) {
	data, err := storage.ReadAll(ctx, e.store, location)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read previous export %s: %w", location, err)
	}

	return data, true, nil
}

// EncodeCSV renders rows with a header in the fixed column order
func EncodeCSV(rows []FeatureRow) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.SnapshotDate.UTC().Format("2006-01-02"),
			strconv.FormatInt(r.UserID, 10),
			r.ValueProp,
			strconv.FormatInt(r.ViewCount, 10),
			strconv.FormatBool(r.ClickOccurred),
			strconv.FormatInt(r.TapCount, 10),
			strconv.FormatInt(r.PaymentCount, 10),
			strconv.FormatInt(r.PaymentTotal, 10),
		}

		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodeParquet renders rows as a single Parquet file
func EncodeParquet(rows []FeatureRow) ([]byte, error) {
	var buf bytes.Buffer

	w := parquet.NewGenericWriter[ParquetRow](&buf)

	out := make([]ParquetRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, toParquet(r))
	}

	if len(out) > 0 {
		if _, err := w.Write(out); err != nil {
			return nil, fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeParquet reads rows written by EncodeParquet
func DecodeParquet(data []byte) ([]FeatureRow, error) {
	prows, err := parquet.Read[ParquetRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}

	out := make([]FeatureRow, 0, len(prows))
	for _, p := range prows {
		out = append(out, FeatureRow{
			SnapshotDate:  p.Time(),
			UserID:        p.UserID,
			ValueProp:     p.ValueProp,
			ViewCount:     p.ViewCount,
			ClickOccurred: p.ClickOccurred,
			TapCount:      p.TapCount,
			PaymentCount:  p.PaymentCount,
			PaymentTotal:  p.PaymentTotal,
		})
	}

	return out, nil
}

func toParquet(r FeatureRow) ParquetRow {
	d := r.SnapshotDate.UTC()
	days := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400

	return ParquetRow{
		SnapshotDate:  int32(days), //nolint:gosec // dates fit in int32 days
		UserID:        r.UserID,
		ValueProp:     r.ValueProp,
		ViewCount:     r.ViewCount,
		ClickOccurred: r.ClickOccurred,
		TapCount:      r.TapCount,
		PaymentCount:  r.PaymentCount,
		PaymentTotal:  r.PaymentTotal,
	}
}
