package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
)

func (a *App) commands() []command {
	return []command{
		{name: "register", help: "set the master password (first run)", access: guestOnly,
			run: func(ctx context.Context, _ []string) error { return a.Register(ctx) }},
		{name: "login", help: "unlock the vault", access: guestOnly,
			run: func(ctx context.Context, _ []string) error { return a.Login(ctx) }},
		{name: "logout", help: "end the session", access: userOnly,
			run: func(ctx context.Context, _ []string) error { return a.Logout(ctx) }},
		{name: "passwd", help: "change the master password", access: userOnly,
			run: func(ctx context.Context, _ []string) error { return a.ChangePassword(ctx) }},

		{name: "contacts", aliases: []string{"l", "list"}, usage: "[filter]", help: "list contacts", access: userOnly,
			run: a.listContacts},
		{name: "show", usage: "<id>", help: "show one contact with its history", access: userOnly,
			run: a.showContact},
		{name: "addcontact", help: "add a contact", access: userOnly,
			run: a.addContact},
		{name: "delcontact", usage: "<id>", help: "delete a contact", access: userOnly,
			run: a.deleteContact},
		{name: "note", usage: "<id> [type]", help: "log an interaction", access: userOnly,
			run: a.addNote},
		{name: "dupes", help: "contacts sharing a phone number", access: userOnly,
			run: a.duplicates},

		{name: "deals", help: "list the pipeline", access: userOnly,
			run: a.listDeals},
		{name: "adddeal", usage: "<contact-id> [title]", help: "open a deal", access: userOnly,
			run: a.addDeal},
		{name: "stage", usage: "<deal-id> <stage>", help: "move a deal", access: userOnly,
			run: a.moveDeal},

		{name: "leads", help: "list the lead inbox", access: userOnly,
			run: a.listLeads},
		{name: "addlead", help: "add an incoming lead", access: userOnly,
			run: a.addLead},
		{name: "accept", usage: "<lead-id>", help: "turn a lead into a contact", access: userOnly,
			run: a.acceptLead},
		{name: "reject", usage: "<lead-id>", help: "drop a lead", access: userOnly,
			run: a.rejectLead},

		{name: "apikey", usage: "[provider]", help: "list or set completion API keys", access: userOnly,
			run: a.apiKey},
		{name: "testai", usage: "<provider>", help: "check a completion provider", access: userOnly,
			run: a.testCompletion},

		{name: "export", usage: "[file]", help: "write a JSON backup", access: userOnly,
			run: a.export},
		{name: "import", usage: "<file>", help: "replace data from a JSON backup", access: userOnly,
			run: a.importBackup},
		{name: "discard", usage: "<collection>", help: "start an unreadable collection empty", access: userOnly,
			run: a.discard},

		{name: "logs", usage: "[n]", help: "show the security log", access: userOnly,
			run: a.showLogs},
		{name: "metrics", help: "security event counters", access: userOnly,
			run: a.showMetrics},
	}
}

// usageError reports a malformed command line.
func usageError(usage string) error {
	return fmt.Errorf("%w: usage: %s", common.ErrValidation, usage)
}

// resolveID finds the single id starting with prefix.
func resolveID(prefix string, ids []string) (string, error) {
	var found []string
	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", prefix, common.ErrorNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: id prefix %q is ambiguous", common.ErrValidation, prefix)
	}
}

// shortID trims an id to its kind prefix ("deal-", "lead-") plus eight
// characters, which is enough for resolveID.
func shortID(id string) string {
	n := 8
	if i := strings.IndexByte(id, '-'); i > 0 && i < 5 {
		n += i + 1
	}
	if len(id) > n {
		return id[:n]
	}
	return id
}
