package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/leadscore/pkg/errs"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	schemeFile       = "file://"
	schemeSQLite     = "sqlite://"
	schemePostgres   = "postgres://"
	schemePostgreSQL = "postgresql://"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	tableParam = "table"
	utf8BOM    = "\ufeff"
)

var identRegEx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Records is a raw table: a header and rows of string cells.
type Records struct {
	Header []string
	Rows   [][]string
}

// Source reads one table.
type Source interface {
	Read(ctx context.Context) (*Records, error)
	String() string
}

// Open resolves a table URI to a Source. Plain paths and file:// URIs are
// CSV files; sqlite:// and postgres:// URIs name a table with ?table=.
func Open(uri string) (Source, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errs.IO(errs.StageLoad, "table source not specified")
	}

	switch {
	case strings.HasPrefix(uri, schemeSQLite):
		return newSQLiteSource(uri)
	case strings.HasPrefix(uri, schemePostgres), strings.HasPrefix(uri, schemePostgreSQL):
		return newPostgresSource(uri)
	case strings.HasPrefix(uri, schemeFile):
		return &CSVSource{Path: strings.TrimPrefix(uri, schemeFile)}, nil
	default:
		return &CSVSource{Path: uri}, nil
	}
}

// CSVSource reads a comma delimited file with a header row.
type CSVSource struct {
	Path string
}

func (s *CSVSource) String() string { return s.Path }

func (s *CSVSource) Read(_ context.Context) (*Records, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errs.IO(errs.StageLoad, "error opening %s: %w", s.Path, err)
	}
	defer f.Close()

	return readCSV(f, s.Path)
}

func readCSV(r io.Reader, name string) (*Records, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errs.Schema(errs.StageLoad, "%s: missing header row", name)
		}
		return nil, errs.IO(errs.StageLoad, "error reading header of %s: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			// line 1 is the header
			return nil, errs.Data(errs.StageLoad, "%s: row %d: %w", name, pe.StartLine-1, pe.Err)
		}
		return nil, errs.IO(errs.StageLoad, "error reading %s: %w", name, err)
	}

	return &Records{Header: header, Rows: rows}, nil
}

// SQLSource reads every row of one table through database/sql.
type SQLSource struct {
	Driver string
	DSN    string
	Table  string
	label  string
}

func (s *SQLSource) String() string { return s.label }

func (s *SQLSource) Read(ctx context.Context) (*Records, error) {
	query := "SELECT * FROM " + quoteIdent(s.Table)

	db, err := sql.Open(s.Driver, s.DSN)
	if err != nil {
		return nil, errs.IO(errs.StageLoad, "failed to open database %s: %w", s.label, err)
	}
	defer db.Close()

	slog.Debug("reading table", "source", s.label, "query", query)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errs.IO(errs.StageLoad, "failed to query %s: %w", s.label, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errs.IO(errs.StageLoad, "failed to read columns of %s: %w", s.label, err)
	}

	res := &Records{Header: cols, Rows: make([][]string, 0)}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.IO(errs.StageLoad, "failed to scan row of %s: %w", s.label, err)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = cellString(v)
		}
		res.Rows = append(res.Rows, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.IO(errs.StageLoad, "failed to iterate rows of %s: %w", s.label, err)
	}

	return res, nil
}

func newSQLiteSource(uri string) (*SQLSource, error) {
	rest := strings.TrimPrefix(uri, schemeSQLite)
	path, rawQuery, _ := strings.Cut(rest, "?")
	if path == "" {
		return nil, errs.IO(errs.StageLoad, "sqlite source %s: database path required", uri)
	}

	table, err := tableFromQuery(uri, rawQuery)
	if err != nil {
		return nil, err
	}

	return &SQLSource{
		Driver: driverSQLite,
		DSN:    path,
		Table:  table,
		label:  fmt.Sprintf("%s%s[%s]", schemeSQLite, path, table),
	}, nil
}

func newPostgresSource(uri string) (*SQLSource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errs.IO(errs.StageLoad, "invalid postgres source: %w", err)
	}

	table, err := tableFromQuery(u.Redacted(), u.RawQuery)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Del(tableParam)
	u.RawQuery = q.Encode()

	return &SQLSource{
		Driver: driverPostgres,
		DSN:    u.String(),
		Table:  table,
		label:  fmt.Sprintf("%s://%s%s[%s]", u.Scheme, u.Host, u.Path, table),
	}, nil
}

func tableFromQuery(uri, rawQuery string) (string, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", errs.IO(errs.StageLoad, "invalid query in %s: %w", uri, err)
	}
	table := q.Get(tableParam)
	if table == "" {
		return "", errs.IO(errs.StageLoad, "%s: ?%s= parameter required", uri, tableParam)
	}
	if !identRegEx.MatchString(table) {
		return "", errs.IO(errs.StageLoad, "%s: invalid table name %q", uri, table)
	}
	return table, nil
}

// quoteIdent quotes a validated, optionally schema qualified, identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
