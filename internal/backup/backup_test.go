package backup

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func TestExport_Shape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, []models.Contact{{ID: "1", Name: "王"}}, nil, nil, now))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "1.0", raw["version"])
	assert.Equal(t, "2024-03-01T10:30:00.000Z", raw["exportDate"])
	assert.Len(t, raw["contacts"], 1)
	assert.Equal(t, []any{}, raw["deals"])
	assert.Equal(t, []any{}, raw["leads"])
	assert.NotContains(t, raw, "apiKeys")
	assert.Contains(t, buf.String(), "\n  \"version\"")
}

func TestExportImport_RoundTrip(t *testing.T) {
	contacts := []models.Contact{{ID: "1", Name: "王", Phone: "0912-345-678", Tags: []string{"VIP"}}}
	deals := []models.Deal{{ID: "d1", Title: "Roof", ContactID: "1", Value: 1200, Stage: models.StageViewing, Probability: 20}}
	leads := []models.Lead{{ID: "l1", Name: "Chen", Status: models.LeadPending, Role: models.RoleBuyer}}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, contacts, deals, leads, now))

	doc, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, doc.Version)
	assert.Equal(t, contacts, doc.Contacts)
	assert.Equal(t, deals, doc.Deals)
	assert.Equal(t, leads, doc.Leads)
}

func TestImport_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", "{"},
		{"not an object", "[]"},
		{"missing contacts", `{"deals":[],"leads":[]}`},
		{"missing deals", `{"contacts":[],"leads":[]}`},
		{"missing leads", `{"contacts":[],"deals":[]}`},
		{"contacts not array", `{"contacts":{},"deals":[],"leads":[]}`},
		{"leads null", `{"contacts":[],"deals":[],"leads":null}`},
		{"bad element", `{"contacts":[1],"deals":[],"leads":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, common.ErrFormat)
		})
	}
}

func TestImport_EmptyArrays(t *testing.T) {
	doc, err := Import(strings.NewReader(`{"contacts":[],"deals":[],"leads":[]}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Contacts)
	assert.Empty(t, doc.Version)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "crm_backup_2024-03-01.json", FileName(now))
}

func TestFindDuplicateContacts(t *testing.T) {
	contacts := []models.Contact{
		{ID: "1", Phone: "0912-345-678"},
		{ID: "2", Phone: "0922 000 111"},
		{ID: "3", Phone: "0912345678"},
		{ID: "4"},
		{ID: "5"},
		{ID: "6", Phone: "0922000111"},
		{ID: "7", Phone: "0933000111"},
		{ID: "8", Phone: "0912 345-678"},
	}

	groups := FindDuplicateContacts(contacts)
	require.Len(t, groups, 2)

	ids := func(g []models.Contact) []string {
		var out []string
		for _, c := range g {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "3", "8"}, ids(groups[0]))
	assert.Equal(t, []string{"2", "6"}, ids(groups[1]))
}

func TestFindDuplicateContacts_None(t *testing.T) {
	assert.Empty(t, FindDuplicateContacts(nil))
	assert.Empty(t, FindDuplicateContacts([]models.Contact{{ID: "1", Phone: "0912345678"}}))
}
