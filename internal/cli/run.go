package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portal-sync/internal/report"
	"portal-sync/internal/sftpclient"
	"portal-sync/internal/sync"
)

// ErrRunFailed is returned when a run finished with record errors.
var ErrRunFailed = errors.New("sync finished with errors")

// RunCmd runs one sync pass and exits non-zero unless it was fully successful.
func RunCmd() *cobra.Command {
	var (
		limit, pages, concurrency string
		reportDir                 string
		upload                    bool
		asJSON                    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync HubSpot services into the portal database",
		Long: `Fetches HubSpot services with their company and owner, then upserts
clients and projects. Services not linked to exactly one company are skipped
and reported as warnings.

Examples:
  portal-sync run
  portal-sync run --limit 100 --pages 5 --concurrency 8
  portal-sync run --report ./reports --sftp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			params := sync.NewParams(
				firstSet(limit, d.cfg.SyncPageSize),
				firstSet(pages, d.cfg.SyncMaxPages),
				firstSet(concurrency, d.cfg.SyncConcurrency),
			)
			res, err := d.runner.Run(ctx, params)
			if err != nil {
				return fmt.Errorf("sync run %s: %w", res.RunID, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := report.WriteJSON(out, res); err != nil {
					return err
				}
			} else {
				PrintSummary(out, res)
			}

			if reportDir != "" || upload {
				if err := writeReports(cmd, d, res, reportDir, upload); err != nil {
					return err
				}
			}

			if !res.Success {
				return ErrRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&limit, "limit", "", "page size (default 50, max 100)")
	cmd.Flags().StringVar(&pages, "pages", "", "maximum pages to fetch (default 10, max 50)")
	cmd.Flags().StringVar(&concurrency, "concurrency", "", "enrichment workers (default 4, max 10)")
	cmd.Flags().StringVar(&reportDir, "report", "", "directory to write the CSV and JSON run report to")
	cmd.Flags().BoolVar(&upload, "sftp", false, "upload the CSV report to the configured SFTP drop")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	return cmd
}

func writeReports(cmd *cobra.Command, d *deps, res sync.RunResult, dir string, upload bool) error {
	var csvBuf bytes.Buffer
	if err := report.WriteCSV(&csvBuf, res); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}
	csvName := report.FileName(res, "csv")

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, csvName), csvBuf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write csv report: %w", err)
		}

		var jsonBuf bytes.Buffer
		if err := report.WriteJSON(&jsonBuf, res); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, report.FileName(res, "json")), jsonBuf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write json report: %w", err)
		}
		d.log.Info("report written", zap.String("dir", dir), zap.String("file", csvName))
	}

	if upload {
		if err := sftpclient.UploadBytes(cmd.Context(), sftpConfig(d.cfg.SFTP), csvBuf.Bytes(), csvName); err != nil {
			return err
		}
		d.log.Info("report uploaded", zap.String("host", d.cfg.SFTP.Host), zap.String("file", csvName))
	}
	return nil
}

// PrintSummary writes a human readable run summary.
func PrintSummary(w io.Writer, res sync.RunResult) {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	state := ok("OK")
	if !res.Success {
		state = bad("FAILED")
	}
	fmt.Fprintf(w, "Sync %s  %s  (%dms)\n", res.RunID, state, res.ElapsedMs)
	fmt.Fprintf(w, "  fetched   %d (%d pages)\n", res.Fetched, res.Pages)
	fmt.Fprintf(w, "  valid     %d\n", res.Valid)
	fmt.Fprintf(w, "  invalid   %d\n", res.Invalid)
	fmt.Fprintf(w, "  updated   %d (%d new clients)\n", res.Updated, res.ClientsNew)
	if res.Truncated {
		fmt.Fprintf(w, "  %s page limit reached, more services remain\n", warn("!"))
	}

	for _, inv := range res.Warnings {
		fmt.Fprintf(w, "  %s %s has %d companies\n", warn("skip"), inv.ID, inv.CompanyCount)
	}
	for _, e := range res.EnrichErrors {
		fmt.Fprintf(w, "  %s %s: %v\n", bad("enrich"), e.ID, e.Err)
	}
	for _, e := range res.ProjectErrors {
		fmt.Fprintf(w, "  %s %s: %v\n", bad(e.Stage), e.ID, e.Err)
	}
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
