// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file streams parameter judgements of saved analyses into BigQuery for
// analytics.

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// RowInserter is the subset of *bigquery.Inserter the exporter needs.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// ParameterExporter appends one row per rubric parameter of an analysis to
// the configured table.
type ParameterExporter struct {
	Inserter RowInserter
	Table    string
}

// NewParameterExporter returns nil when client is nil, which callers treat as
// "export disabled".
func NewParameterExporter(client *bigquery.Client, dataset string, table string) *ParameterExporter {
	if client == nil || dataset == "" || table == "" {
		return nil
	}
	t := client.Dataset(dataset).Table(table)
	return &ParameterExporter{Inserter: t.Inserter(), Table: t.FullyQualifiedName()}
}

// Export writes the parameter rows of a successful analysis. Analyses without
// an object-shaped parameter map produce no rows.
func (e *ParameterExporter) Export(ctx context.Context, analysisID int64, doc model.Analysis, createdAt time.Time) (int, error) {
	rows, err := ParameterRows(analysisID, doc, createdAt)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := e.Inserter.Put(ctx, rows); err != nil {
		return 0, fmt.Errorf("bigquery insert into %s failed for analysis %d: %w", e.Table, analysisID, err)
	}
	return len(rows), nil
}

// ParameterRows flattens the input song's parameters into export rows sorted
// by parameter name. Values are JSON encoded.
func ParameterRows(analysisID int64, doc model.Analysis, createdAt time.Time) ([]*model.ParameterExportRow, error) {
	song := doc.InputSong()
	if !song.ParametersIsObject {
		return nil, nil
	}

	names := make([]string, 0, len(song.Parameters))
	for name := range song.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*model.ParameterExportRow, 0, len(names))
	for _, name := range names {
		p := song.Parameters[name]
		value, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameter %q: %w", name, err)
		}
		row := &model.ParameterExportRow{
			AnalysisID:     analysisID,
			SongName:       song.SongName,
			Artist:         song.Artist,
			ParameterName:  name,
			ParameterValue: string(value),
			CreatedAt:      createdAt,
		}
		if p.ConfidenceScore != nil {
			row.ConfidenceScore = *p.ConfidenceScore
		}
		out = append(out, row)
	}
	return out, nil
}
