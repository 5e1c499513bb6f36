package backup

import (
	"github.com/dmitrijs2005/crmkeeper/internal/models"
	"github.com/dmitrijs2005/crmkeeper/internal/validate"
)

// FindDuplicateContacts groups contacts sharing a phone number once dashes
// and spaces are removed. Only groups of two or more are returned, in order
// of first appearance. Contacts without a phone are ignored.
func FindDuplicateContacts(contacts []models.Contact) [][]models.Contact {
	var order []string
	groups := make(map[string][]models.Contact)

	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		phone := validate.NormalizePhone(c.Phone)
		if _, seen := groups[phone]; !seen {
			order = append(order, phone)
		}
		groups[phone] = append(groups[phone], c)
	}

	var out [][]models.Contact
	for _, phone := range order {
		if g := groups[phone]; len(g) > 1 {
			out = append(out, g)
		}
	}
	return out
}
