package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

// Record is one row of a registration roster after header mapping, before
// any model conversion.
type Record struct {
	FirstName       string
	LastName        string
	Company         string
	JobTitle        string
	JobFunction     string
	ManagementLevel string
	TicketType      string
	Email           string
	LinkedInURL     string
	Rep             string
}

// CSVOptions control roster CSV parsing.
type CSVOptions struct {
	Delimiter  rune   // default comma
	Charset    string // IANA name, e.g. "windows-1252"; default UTF-8
	LazyQuotes bool
}

// Registration exports rarely use consistent header names, so matching is
// on a normalized form: lowercased with spaces and underscores removed.
var columnSetters = map[string]func(*Record, string){
	"firstname":                 func(r *Record, v string) { r.FirstName = v },
	"lastname":                  func(r *Record, v string) { r.LastName = v },
	"company":                   func(r *Record, v string) { r.Company = v },
	"companyname":               func(r *Record, v string) { r.Company = v },
	"jobtitle":                  func(r *Record, v string) { r.JobTitle = v },
	"title":                     func(r *Record, v string) { r.JobTitle = v },
	"jobfunction":               func(r *Record, v string) { r.JobFunction = v },
	"managementlevel":           func(r *Record, v string) { r.ManagementLevel = v },
	"tickettype":                func(r *Record, v string) { r.TicketType = v },
	"workemail":                 func(r *Record, v string) { r.Email = v },
	"email":                     func(r *Record, v string) { r.Email = v },
	"linkedincontactprofileurl": func(r *Record, v string) { r.LinkedInURL = v },
	"linkedin":                  func(r *Record, v string) { r.LinkedInURL = v },
	"rep":                       func(r *Record, v string) { r.Rep = v },
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return strings.TrimPrefix(h, "\uFEFF")
}

// headerMap binds column indexes to Record setters. A "Full Name" column is
// handled separately because it needs splitting.
func headerMap(header []string) (map[int]func(*Record, string), int) {
	setters := make(map[int]func(*Record, string), len(header))
	fullNameIdx := -1
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "fullname" || key == "name" {
			fullNameIdx = i
			continue
		}
		if set, ok := columnSetters[key]; ok {
			setters[i] = set
		}
	}
	return setters, fullNameIdx
}

// splitFullName breaks "Jane van der Berg" into first name "Jane" and the
// remainder as last name. Single tokens become a first name only.
func splitFullName(full string) (first, last string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

func recordFromRow(row []string, setters map[int]func(*Record, string), fullNameIdx int) Record {
	var rec Record
	for i, set := range setters {
		if i < len(row) {
			set(&rec, strings.TrimSpace(row[i]))
		}
	}
	if rec.FirstName == "" && fullNameIdx >= 0 && fullNameIdx < len(row) {
		rec.FirstName, rec.LastName = splitFullName(row[fullNameIdx])
	}
	return rec
}

func (r Record) valid() bool {
	return r.FirstName != "" && r.Company != ""
}

// dedupeKey identifies one person at one company regardless of how many
// registrations they hold.
func (r Record) dedupeKey() string {
	return strings.ToLower(r.FirstName) + "|" + strings.ToLower(r.LastName) + "|" + strings.ToLower(r.Company)
}

// ParseCSV reads a roster CSV and returns deduplicated records. The first
// row is the header.
func ParseCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]Record, error) {
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: unknown charset %s", opts.Charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read csv header")
	}
	setters, fullNameIdx := headerMap(header)
	if len(setters) == 0 && fullNameIdx < 0 {
		return nil, eris.New("fetcher: no recognized roster columns in header")
	}

	var (
		out     []Record
		seen    = map[string]bool{}
		skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fetcher: parse csv")
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read csv row")
		}
		rec := recordFromRow(row, setters, fullNameIdx)
		if !rec.valid() {
			skipped++
			continue
		}
		if key := rec.dedupeKey(); !seen[key] {
			seen[key] = true
			out = append(out, rec)
		}
	}

	zap.L().Info("fetcher: parsed roster csv",
		zap.Int("records", len(out)),
		zap.Int("skipped", skipped))
	return out, nil
}
