package cli

import (
	"context"
	"strconv"

	"github.com/dmitrijs2005/crmkeeper/internal/models"
)

func (a *App) leadIDs() []string {
	leads := a.crm.Leads()
	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	return ids
}

func (a *App) listLeads(_ context.Context, _ []string) error {
	leads := a.crm.Leads()
	if len(leads) == 0 {
		a.println("Inbox is empty")
		return nil
	}

	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, []string{
			shortID(l.ID), l.Source, l.Name, l.Phone,
			strconv.FormatInt(l.Budget, 10), l.PreferredArea, l.Status,
		})
	}
	table(a.out, []string{"ID", "SOURCE", "NAME", "PHONE", "BUDGET", "AREA", "STATUS"}, rows)
	return nil
}

func (a *App) addLead(ctx context.Context, _ []string) error {
	var l models.Lead
	var err error

	if l.Source, err = a.ask(ctx, "Source"); err != nil {
		return err
	}
	if l.Name, err = a.ask(ctx, "Name"); err != nil {
		return err
	}
	if l.Phone, err = a.ask(ctx, "Phone"); err != nil {
		return err
	}
	budget, err := a.ask(ctx, "Budget (optional)")
	if err != nil {
		return err
	}
	if l.Budget, err = parseAmount(budget); err != nil {
		return err
	}
	if l.PreferredArea, err = a.ask(ctx, "Area"); err != nil {
		return err
	}
	if l.RawContent, err = GetMultiline(ctx, a.in, "Message", a.out); err != nil {
		return err
	}

	added, err := a.crm.AddLeads(ctx, l)
	if err != nil {
		return err
	}
	a.success("Lead %s added", shortID(added[0].ID))
	return nil
}

func (a *App) acceptLead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("accept <lead-id>")
	}
	id, err := resolveID(args[0], a.leadIDs())
	if err != nil {
		return err
	}

	c, err := a.crm.AcceptLead(ctx, id)
	if err != nil {
		return err
	}
	a.success("%s is now contact %s", c.Name, shortID(c.ID))
	return nil
}

func (a *App) rejectLead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("reject <lead-id>")
	}
	id, err := resolveID(args[0], a.leadIDs())
	if err != nil {
		return err
	}

	if err := a.crm.RejectLead(ctx, id); err != nil {
		return err
	}
	a.success("Lead rejected")
	return nil
}
