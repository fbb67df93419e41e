package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/storage"
)

// pathData is exposed to the path template
type pathData struct {
	Dataset string
	Stage   string
	Date    string
	RunID   string
}

// FileSink writes pretty-printed JSON reports under a root location through a storage.Store
type FileSink struct {
	log   logrus.FieldLogger
	store storage.Store
	root  string
	tmpl  *template.Template
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates a sink writing under root using pathTemplate, rendered with sprig functions
func NewFileSink(log logrus.FieldLogger, store storage.Store, root, pathTemplate string) (*FileSink, error) {
	tmpl, err := parsePathTemplate(pathTemplate)
	if err != nil {
		return nil, err
	}

	return &FileSink{
		log:   log.WithField("service", "reports"),
		store: store,
		root:  root,
		tmpl:  tmpl,
	}, nil
}

// Location renders the report location for a dataset and stage
func (s *FileSink) Location(ctx context.Context, dataset, stage string) (string, error) {
	data := pathData{Dataset: dataset, Stage: stage}

	if run, ok := RunFromContext(ctx); ok {
		data.Date = run.DateString()
		data.RunID = run.ID
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPathTemplate, err)
	}

	rel := strings.TrimSpace(buf.String())
	if rel == "" {
		return "", fmt.Errorf("%w: rendered an empty path", ErrInvalidPathTemplate)
	}

	return storage.Join(s.root, rel), nil
}

// Write marshals doc as indented JSON and replaces the report
func (s *FileSink) Write(ctx context.Context, dataset, stage string, doc any) (string, error) {
	loc, err := s.Location(ctx, dataset, stage)
	if err != nil {
		return "", err
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s %s report: %w", dataset, stage, err)
	}

	if err := s.store.Put(ctx, loc, append(body, '\n')); err != nil {
		return "", fmt.Errorf("failed to write %s %s report: %w", dataset, stage, err)
	}

	s.log.WithFields(logrus.Fields{
		"dataset": dataset,
		"stage":   stage,
		"report":  loc,
	}).Debug("Wrote report")

	return loc, nil
}

// Read loads the current report
func (s *FileSink) Read(ctx context.Context, dataset, stage string) ([]byte, error) {
	loc, err := s.Location(ctx, dataset, stage)
	if err != nil {
		return nil, err
	}

	data, err := storage.ReadAll(ctx, s.store, loc)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, loc)
		}

		return nil, err
	}

	return data, nil
}
