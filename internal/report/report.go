// Package report renders a sync run summary for operators.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"portal-sync/internal/sync"
)

// Header order is part of the file format consumed downstream.
var csvHeader = []string{
	"RUN_ID",
	"SERVICE_ID",
	"KIND",
	"COMPANY_COUNT",
	"ERROR",
}

// Row kinds.
const (
	KindInvalid = "invalid"
	KindEnrich  = "enrich_error"
	KindClient  = "client_error"
	KindProject = "project_error"
)

// WriteCSV writes one row per service that did not sync cleanly.
// A clean run produces only the header.
func WriteCSV(w io.Writer, res sync.RunResult) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, inv := range res.Warnings {
		if err := cw.Write([]string{res.RunID, inv.ID, KindInvalid, strconv.Itoa(inv.CompanyCount), ""}); err != nil {
			return err
		}
	}
	for _, e := range res.EnrichErrors {
		if err := cw.Write(errorRow(res.RunID, e)); err != nil {
			return err
		}
	}
	for _, e := range res.ProjectErrors {
		if err := cw.Write(errorRow(res.RunID, e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func errorRow(runID string, e sync.RecordError) []string {
	kind := KindProject
	switch e.Stage {
	case sync.StageEnrich:
		kind = KindEnrich
	case sync.StageClient:
		kind = KindClient
	}
	msg := ""
	if e.Err != nil {
		msg = oneLine(e.Err.Error())
	}
	return []string{runID, e.ID, kind, "", msg}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// WriteJSON writes the full summary, indented.
func WriteJSON(w io.Writer, res sync.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

// FileName returns the report name for a run, e.g. sync-<runID>.csv.
func FileName(res sync.RunResult, ext string) string {
	return "sync-" + res.RunID + "." + strings.TrimPrefix(ext, ".")
}
