// Package importer parses member CSV exports.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"newsroom/internal/domain"
)

var ErrMissingEmailColumn = errors.New("csv has no email column")

var columnAliases = map[string]string{
	"email":                "email",
	"email_address":        "email",
	"first_name":           "first_name",
	"firstname":            "first_name",
	"last_name":            "last_name",
	"lastname":             "last_name",
	"name":                 "name",
	"subscribed_to":        "subscribed",
	"subscribed_to_emails": "subscribed",
	"subscribed":           "subscribed",
	"location":             "location",
	"resend_contact_id":    "resend_contact_id",
	"resendcontactid":      "resend_contact_id",
}

// Row is one importable member. Unsubscribed is nil when the row does not
// state a subscription, so an existing member keeps their current flag.
type Row struct {
	Member       domain.Member
	Unsubscribed *bool
}

type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{validate: validator.New()}
}

// Parse reads a member CSV with a header row. Rows that cannot be imported
// are returned as row errors with their 1-based line number; the header is
// line 1. A later row for an email already seen in the file replaces it.
func (p *Parser) Parse(r io.Reader) ([]Row, []domain.ImportRowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrMissingEmailColumn
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if canonical, ok := columnAliases[key]; ok {
			if _, dup := columns[canonical]; !dup {
				columns[canonical] = i
			}
		}
	}
	if _, ok := columns["email"]; !ok {
		return nil, nil, ErrMissingEmailColumn
	}

	var (
		rows    []Row
		rowErrs []domain.ImportRowError
		byEmail = make(map[string]int)
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, domain.ImportRowError{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		row, reason := p.parseRow(record, columns)
		if reason != "" {
			rowErrs = append(rowErrs, domain.ImportRowError{Line: line, Reason: reason})
			continue
		}

		if i, seen := byEmail[row.Member.Email]; seen {
			rows[i] = row
			continue
		}
		byEmail[row.Member.Email] = len(rows)
		rows = append(rows, row)
	}

	return rows, rowErrs, nil
}

func (p *Parser) parseRow(record []string, columns map[string]int) (Row, string) {
	get := func(col string) string {
		i, ok := columns[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	email := domain.NormalizeEmail(get("email"))
	if email == "" {
		return Row{}, "email is required"
	}
	if err := p.validate.Var(email, "email"); err != nil {
		return Row{}, fmt.Sprintf("invalid email %q", email)
	}

	member := domain.Member{
		Email:     email,
		FirstName: get("first_name"),
		LastName:  get("last_name"),
	}
	if member.FirstName == "" && member.LastName == "" {
		member.FirstName, member.LastName = splitName(get("name"))
	}

	row := Row{}
	if raw := get("subscribed"); raw != "" {
		subscribed, err := parseBool(raw)
		if err != nil {
			return Row{}, fmt.Sprintf("invalid subscribed value %q", raw)
		}
		unsubscribed := !subscribed
		row.Unsubscribed = &unsubscribed
	}

	if loc := get("location"); loc != "" {
		member.Location = &loc
	}
	if id := get("resend_contact_id"); id != "" {
		member.ResendContactID = &id
	}
	row.Member = member
	return row, ""
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.Join(strings.Fields(name), " "), " ")
	return first, last
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
