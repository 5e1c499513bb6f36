// Package backup reads and writes the human-facing JSON backup of the CRM
// collections and can copy a backup to S3-compatible storage.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
)

// FormatVersion is written to every export.
const FormatVersion = "1.0"

// Document is the backup file. API keys are never exported.
type Document struct {
	Version    string           `json:"version"`
	ExportDate string           `json:"exportDate"`
	Contacts   []models.Contact `json:"contacts"`
	Deals      []models.Deal    `json:"deals"`
	Leads      []models.Lead    `json:"leads"`
}

// Export writes an indented backup of the given collections.
func Export(w io.Writer, contacts []models.Contact, deals []models.Deal, leads []models.Lead, now time.Time) error {
	doc := Document{
		Version:    FormatVersion,
		ExportDate: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Contacts:   orEmpty(contacts),
		Deals:      orEmpty(deals),
		Leads:      orEmpty(leads),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Import parses a backup. contacts, deals and leads must all be present and
// be arrays; anything else is common.ErrFormat.
func Import(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFormat, err)
	}
	for _, field := range []string{"contacts", "deals", "leads"} {
		if !isArray(raw[field]) {
			return nil, fmt.Errorf("%w: missing %s", common.ErrFormat, field)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFormat, err)
	}
	return &doc, nil
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

// FileName is the conventional name of a backup taken at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("crm_backup_%s.json", now.Format("2006-01-02"))
}
