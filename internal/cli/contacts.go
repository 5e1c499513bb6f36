package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
)

func (a *App) contactIDs() []string {
	contacts := a.crm.Contacts()
	ids := make([]string, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}

func (a *App) listContacts(_ context.Context, args []string) error {
	filter := strings.ToLower(strings.Join(args, " "))

	var rows [][]string
	for _, c := range a.crm.Contacts() {
		if filter != "" && !strings.Contains(strings.ToLower(c.Name+" "+c.Phone+" "+c.PreferredArea), filter) {
			continue
		}
		rows = append(rows, []string{shortID(c.ID), c.Name, c.Phone, c.Status, c.PreferredArea, c.LastContacted})
	}
	if len(rows) == 0 {
		a.println("No contacts")
		return nil
	}
	table(a.out, []string{"ID", "NAME", "PHONE", "STATUS", "AREA", "LAST CONTACT"}, rows)
	return nil
}

func (a *App) showContact(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("show <id>")
	}
	id, err := resolveID(args[0], a.contactIDs())
	if err != nil {
		return err
	}
	c, err := a.crm.Contact(id)
	if err != nil {
		return err
	}

	a.printf("%s  %s\n", color.New(color.Bold).Sprint(c.Name), c.ID)
	field := func(label, value string) {
		if value != "" {
			a.printf("  %-10s %s\n", label, value)
		}
	}
	field("phone", c.Phone)
	field("email", c.Email)
	field("role", string(c.Role))
	field("status", c.Status)
	field("area", c.PreferredArea)
	if c.Budget > 0 {
		field("budget", strconv.FormatInt(c.Budget, 10))
	}
	field("needs", c.Requirement)
	field("tags", strings.Join(c.Tags, ", "))

	if len(c.Interactions) > 0 {
		a.println()
		var rows [][]string
		for _, in := range c.Interactions {
			rows = append(rows, []string{in.Date, in.Type, in.Content})
		}
		table(a.out, []string{"DATE", "TYPE", "CONTENT"}, rows)
	}
	return nil
}

func (a *App) ask(ctx context.Context, prompt string) (string, error) {
	return GetSimpleText(ctx, a.in, prompt, a.out)
}

func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid amount %q", common.ErrValidation, s)
	}
	return v, nil
}

func parseRole(s string) (models.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "b", string(models.RoleBuyer):
		return models.RoleBuyer, nil
	case "s", string(models.RoleSeller):
		return models.RoleSeller, nil
	default:
		return "", fmt.Errorf("%w: role must be buyer or seller", common.ErrValidation)
	}
}

func (a *App) addContact(ctx context.Context, _ []string) error {
	var c models.Contact
	var err error

	if c.Name, err = a.ask(ctx, "Name"); err != nil {
		return err
	}
	if c.Phone, err = a.ask(ctx, "Phone (09xxxxxxxx)"); err != nil {
		return err
	}
	role, err := a.ask(ctx, "Role: buyer or seller [buyer]")
	if err != nil {
		return err
	}
	if c.Role, err = parseRole(role); err != nil {
		return err
	}
	if c.Email, err = a.ask(ctx, "Email (optional)"); err != nil {
		return err
	}
	if c.City, err = a.ask(ctx, "City"); err != nil {
		return err
	}
	if c.District, err = a.ask(ctx, "District"); err != nil {
		return err
	}
	budget, err := a.ask(ctx, "Budget (optional)")
	if err != nil {
		return err
	}
	if c.Budget, err = parseAmount(budget); err != nil {
		return err
	}
	if c.Requirement, err = GetMultiline(ctx, a.in, "Requirements", a.out); err != nil {
		return err
	}

	if existing, dup := a.crm.FindByPhone(c.Phone); dup {
		a.warn("%s already uses this phone number", existing.Name)
	}

	saved, err := a.crm.AddContact(ctx, c)
	if err != nil {
		return err
	}
	a.success("Added %s (%s)", saved.Name, shortID(saved.ID))
	return nil
}

func (a *App) deleteContact(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("delcontact <id>")
	}
	id, err := resolveID(args[0], a.contactIDs())
	if err != nil {
		return err
	}
	c, err := a.crm.Contact(id)
	if err != nil {
		return err
	}

	answer, err := a.ask(ctx, fmt.Sprintf("Delete %s? [y/N]", c.Name))
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		a.println("Cancelled")
		return nil
	}

	if err := a.crm.DeleteContact(ctx, id); err != nil {
		return err
	}
	a.success("Deleted %s", c.Name)
	return nil
}

var interactionTypes = map[string]string{
	"call":    models.InteractionCall,
	"line":    models.InteractionLine,
	"meeting": models.InteractionMeeting,
	"viewing": models.InteractionViewing,
	"note":    models.InteractionNote,
}

func (a *App) addNote(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usageError("note <id> [call|line|meeting|viewing|note]")
	}
	id, err := resolveID(args[0], a.contactIDs())
	if err != nil {
		return err
	}

	kind := models.InteractionNote
	if len(args) == 2 {
		k, ok := interactionTypes[strings.ToLower(args[1])]
		if !ok {
			return usageError("note <id> [call|line|meeting|viewing|note]")
		}
		kind = k
	}

	content, err := GetMultiline(ctx, a.in, "Content", a.out)
	if err != nil {
		return err
	}
	if _, err := a.crm.AddInteraction(ctx, id, kind, content); err != nil {
		return err
	}
	a.success("Logged %s", kind)
	return nil
}

func (a *App) duplicates(_ context.Context, _ []string) error {
	groups := a.crm.Duplicates()
	if len(groups) == 0 {
		a.success("No duplicate phone numbers")
		return nil
	}
	for _, g := range groups {
		a.warn("%s", g[0].Phone)
		for _, c := range g {
			a.printf("    %s  %s\n", shortID(c.ID), c.Name)
		}
	}
	return nil
}
