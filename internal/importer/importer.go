// Package importer loads accounts into the directory from CSV rows of the form
//
//	account_name,account_password,group_name,aliases,tags
//
// where aliases and tags are pipe-separated lists. A leading header row is
// skipped.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/errs"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
)

// MinColumns is the number of required columns per row
const MinColumns = 3

// RowError is a row that could not be imported
type RowError struct {
	Line   int
	Record []string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Report summarizes an import
type Report struct {
	Total   int
	Created int
	Updated int
	Errors  []RowError
	// Warnings are alias, tag or membership failures on otherwise imported rows
	Warnings []string
}

// Importer writes CSV rows into one tenant of the directory
type Importer struct {
	directory *directory.Service
}

// New creates an importer
func New(dir *directory.Service) *Importer {
	return &Importer{directory: dir}
}

// Import reads every row from r. Row failures are collected in the report;
// only an unreadable input returns an error.
func (im *Importer) Import(ctx context.Context, tenantID int64, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &Report{}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.Errors = append(report.Errors, RowError{Line: line, Record: record, Err: err})
				continue
			}
			return report, fmt.Errorf("failed to read csv: %w", err)
		}

		if len(record) < MinColumns {
			report.Errors = append(report.Errors, RowError{
				Line:   line,
				Record: record,
				Err:    fmt.Errorf("row has fewer than %d columns", MinColumns),
			})
			continue
		}
		if line == 1 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(record[0])), "account") {
			continue
		}

		report.Total++
		created, err := im.importRow(ctx, tenantID, record, report)
		switch {
		case err != nil:
			report.Errors = append(report.Errors, RowError{Line: line, Record: record, Err: err})
		case created:
			report.Created++
		default:
			report.Updated++
		}
	}

	slog.InfoContext(ctx, "account import finished",
		logger.Component("importer"),
		logger.Tenant(tenantID),
		slog.Int("total", report.Total),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("failed", len(report.Errors)),
	)
	return report, nil
}

func (im *Importer) importRow(ctx context.Context, tenantID int64, record []string, report *Report) (bool, error) {
	name := strings.TrimSpace(record[0])
	password := strings.TrimSpace(record[1])
	group := strings.TrimSpace(record[2])

	// A group needs an external role, so a missing one fails the row
	if group != "" {
		if _, err := im.directory.GetGroup(ctx, tenantID, group); err != nil {
			if errs.Is(err, errs.NotFound) {
				return false, fmt.Errorf("group %q does not exist in tenant %d", group, tenantID)
			}
			return false, err
		}
	}

	created := true
	_, err := im.directory.CreateAccount(ctx, tenantID, name, password)
	if errors.Is(err, directory.ErrAccountExists) {
		created = false
		err = im.directory.UpdateSecret(ctx, tenantID, name, password)
	}
	if err != nil {
		return false, err
	}

	warn := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: ", name)+fmt.Sprintf(format, args...))
	}

	if group != "" {
		if err := im.directory.AddAccountToGroup(ctx, tenantID, group, name); err != nil && !errors.Is(err, directory.ErrMembershipExists) {
			warn("could not add to group %q: %v", group, err)
		}
	}
	for _, alias := range column(record, 3) {
		if _, err := im.directory.CreateAlias(ctx, tenantID, name, alias); err != nil {
			warn("could not add alias %q: %v", alias, err)
		}
	}
	for _, tag := range column(record, 4) {
		if _, err := im.directory.CreateTag(ctx, tenantID, name, tag); err != nil && !errors.Is(err, directory.ErrTagExists) {
			warn("could not add tag %q: %v", tag, err)
		}
	}
	return created, nil
}

// column splits an optional pipe-separated column
func column(record []string, i int) []string {
	if len(record) <= i {
		return nil
	}
	var out []string
	for _, v := range strings.Split(record[i], "|") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// WriteErrors writes the failed rows with their error so they can be fixed
// and imported again
func WriteErrors(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"account_name", "account_password", "group_name", "aliases", "tags", "error"}); err != nil {
		return err
	}
	for _, rowErr := range report.Errors {
		row := make([]string, 5, 6)
		copy(row, rowErr.Record)
		if err := cw.Write(append(row, rowErr.Err.Error())); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
