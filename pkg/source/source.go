// Package source reads raw datasets addressed by their contract location
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ethpandaops/fpt/pkg/contracts"
	"github.com/ethpandaops/fpt/pkg/storage"
	"github.com/ethpandaops/fpt/pkg/table"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptySource is returned when a tabular source has no header row
	ErrEmptySource = errors.New("source is empty")
	// ErrDecode is returned when an event line is not a JSON object
	ErrDecode = errors.New("failed to decode event record")
	// ErrCoerce is returned when a value cannot be converted to its declared type
	ErrCoerce = errors.New("failed to coerce value")
)

// MaxLineSize bounds a single NDJSON line
const MaxLineSize = 16 * 1024 * 1024

// Reader is the read capability the validators and pipeline depend on
type Reader interface {
	// Columns returns the column names present in the source
	Columns(ctx context.Context, c contracts.Contract) ([]string, error)
	// ScanRows streams CSV records after the header
	ScanRows(ctx context.Context, c contracts.Contract, fn func(header, record []string) error) error
	// ScanLines streams non-blank NDJSON lines
	ScanLines(ctx context.Context, c contracts.Contract, fn func(line []byte) error) error
	// ReadTable loads the whole source with values typed per the contract schema
	ReadTable(ctx context.Context, c contracts.Contract) (*table.Table, error)
}

// StoreReader reads sources through a storage.Store
type StoreReader struct {
	log     logrus.FieldLogger
	store   storage.Store
	lenient bool
}

var _ Reader = (*StoreReader)(nil)

// NewReader creates a Reader backed by store
func NewReader(log logrus.FieldLogger, store storage.Store) *StoreReader {
	return &StoreReader{
		log:   log.WithField("service", "source"),
		store: store,
	}
}

// Lenient returns a reader that loads values failing coercion as nulls instead of erroring
func (r *StoreReader) Lenient() *StoreReader {
	out := *r
	out.lenient = true

	return &out
}

// Columns returns the CSV header for tabular sources and the union of record keys, in
// first-seen order, for event sources
func (r *StoreReader) Columns(ctx context.Context, c contracts.Contract) ([]string, error) {
	if !c.IsEvent() {
		var header []string

		err := r.withCSV(ctx, c, func(cr *csv.Reader) error {
			h, err := readHeader(cr, c.Location)
			header = h

			return err
		})

		return header, err
	}

	keys := newKeySet()

	err := r.ScanLines(ctx, c, func(line []byte) error {
		rec, err := DecodeRecord(line)
		if err != nil {
			return nil //nolint:nilerr // malformed lines contribute no keys
		}

		for _, k := range sortedKeys(rec) {
			keys.add(k)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys.ordered(), nil
}

// ScanRows streams CSV records. The header is read first and passed with every record.
func (r *StoreReader) ScanRows(ctx context.Context, c contracts.Contract, fn func(header, record []string) error) error {
	return r.withCSV(ctx, c, func(cr *csv.Reader) error {
		header, err := readHeader(cr, c.Location)
		if err != nil {
			return err
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("failed to read %s: %w", c.Location, err)
			}

			if err := fn(header, rec); err != nil {
				return err
			}
		}
	})
}

// ScanLines streams NDJSON lines, skipping blank ones
func (r *StoreReader) ScanLines(ctx context.Context, c contracts.Contract, fn func(line []byte) error) error {
	rc, err := r.store.Open(ctx, c.Location)
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", c.Location, err)
	}

	return nil
}

// ReadTable loads the full source. Tabular columns keep header order. Event columns follow
// the schema, then any extra keys in first-seen order.
func (r *StoreReader) ReadTable(ctx context.Context, c contracts.Contract) (*table.Table, error) {
	var (
		t   *table.Table
		err error
	)

	if c.IsEvent() {
		t, err = r.readEvents(ctx, c)
	} else {
		t, err = r.readTabular(ctx, c)
	}

	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"dataset": c.Name,
		"rows":    t.Len(),
		"columns": len(t.Columns()),
	}).Debug("Loaded dataset")

	return t, nil
}

func (r *StoreReader) readTabular(ctx context.Context, c contracts.Contract) (*table.Table, error) {
	var t *table.Table

	err := r.withCSV(ctx, c, func(cr *csv.Reader) error {
		header, err := readHeader(cr, c.Location)
		if err != nil {
			return err
		}

		if t, err = table.New(header...); err != nil {
			return fmt.Errorf("%s: %w", c.Location, err)
		}

		for row := 1; ; row++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("failed to read %s: %w", c.Location, err)
			}

			values := make([]any, len(header))

			for i, name := range header {
				v, err := coerceField(c, name, rec[i])
				if err != nil {
					if !r.lenient {
						return fmt.Errorf("%s row %d: %w", c.Location, row, err)
					}

					r.log.WithError(err).WithField("dataset", c.Name).Debug("Loading unparsable value as null")
				}

				values[i] = v
			}

			if err := t.Append(values...); err != nil {
				return err
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (r *StoreReader) readEvents(ctx context.Context, c contracts.Contract) (*table.Table, error) {
	var records []map[string]any

	keys := newKeySet()

	for _, col := range c.Schema {
		keys.reserve(col.Name)
	}

	line := 0

	err := r.ScanLines(ctx, c, func(raw []byte) error {
		line++

		rec, err := DecodeRecord(raw)
		if err != nil {
			if !r.lenient {
				return fmt.Errorf("%s line %d: %w", c.Location, line, err)
			}

			r.log.WithError(err).WithField("dataset", c.Name).Warn("Skipping malformed event line")

			return nil
		}

		typed := make(map[string]any, len(rec))

		for _, k := range sortedKeys(rec) {
			keys.add(k)

			cv, err := coerceJSON(c, k, rec[k])
			if err != nil {
				if !r.lenient {
					return fmt.Errorf("%s line %d: %w", c.Location, line, err)
				}

				r.log.WithError(err).WithField("dataset", c.Name).Debug("Loading unparsable value as null")
			}

			typed[k] = cv
		}

		records = append(records, typed)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return table.FromRecords(keys.ordered(), records)
}

func (r *StoreReader) withCSV(ctx context.Context, c contracts.Contract, fn func(cr *csv.Reader) error) error {
	rc, err := r.store.Open(ctx, c.Location)
	if err != nil {
		return err
	}
	defer rc.Close()

	cr := csv.NewReader(bufio.NewReader(rc))
	cr.TrimLeadingSpace = true

	return fn(cr)
}

func readHeader(cr *csv.Reader, location string) ([]string, error) {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, location)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", location, err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	return header, nil
}

// DecodeRecord parses one NDJSON line into a JSON object, keeping numbers as json.Number
func DecodeRecord(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if rec == nil {
		return nil, fmt.Errorf("%w: not an object", ErrDecode)
	}

	return rec, nil
}

func sortedKeys(rec map[string]any) []string {
	out := make([]string, 0, len(rec))
	for k := range rec {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// keySet keeps insertion order. Reserved keys sort first but only appear once seen.
type keySet struct {
	reserved []string
	seen     map[string]bool
	extra    []string
}

func newKeySet() *keySet {
	return &keySet{seen: make(map[string]bool)}
}

func (k *keySet) reserve(name string) {
	k.reserved = append(k.reserved, name)
	k.seen[name] = false
}

func (k *keySet) add(name string) {
	seen, known := k.seen[name]
	if seen {
		return
	}

	k.seen[name] = true

	if !known {
		k.extra = append(k.extra, name)
	}
}

func (k *keySet) ordered() []string {
	out := make([]string, 0, len(k.reserved)+len(k.extra))

	for _, name := range k.reserved {
		if k.seen[name] {
			out = append(out, name)
		}
	}

	return append(out, k.extra...)
}
