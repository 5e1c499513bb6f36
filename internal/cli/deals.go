package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/crmkeeper/internal/common"
	"github.com/dmitrijs2005/crmkeeper/internal/models"
)

// stageAliases lets stages be typed in ASCII.
var stageAliases = map[string]string{
	"talk":        models.StageFirstTalk,
	"viewing":     models.StageViewing,
	"negotiation": models.StageNegotiation,
	"signed":      models.StageSigned,
	"closed":      models.StageClosed,
}

func parseStage(s string) (string, error) {
	if v, ok := stageAliases[strings.ToLower(s)]; ok {
		return v, nil
	}
	if models.IsValidStage(s) {
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q (talk, viewing, negotiation, signed, closed)", common.ErrValidation, s)
}

func (a *App) listDeals(_ context.Context, _ []string) error {
	deals := a.crm.Deals()
	if len(deals) == 0 {
		a.println("No deals")
		return nil
	}

	byStage := make(map[string][]models.Deal)
	for _, d := range deals {
		byStage[d.Stage] = append(byStage[d.Stage], d)
	}

	var rows [][]string
	for _, stage := range models.Stages() {
		for _, d := range byStage[stage] {
			rows = append(rows, []string{
				shortID(d.ID), stage, d.Title,
				strconv.FormatFloat(d.Value, 'f', 0, 64),
				strconv.FormatFloat(d.Probability, 'f', 0, 64) + "%",
				d.ExpectedClose,
			})
		}
	}
	table(a.out, []string{"ID", "STAGE", "TITLE", "VALUE", "CHANCE", "CLOSE BY"}, rows)
	return nil
}

func (a *App) dealIDs() []string {
	deals := a.crm.Deals()
	ids := make([]string, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
	}
	return ids
}

func (a *App) addDeal(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("adddeal <contact-id> [title]")
	}
	id, err := resolveID(args[0], a.contactIDs())
	if err != nil {
		return err
	}

	d, err := a.crm.AddDeal(ctx, models.Deal{ContactID: id, Title: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	a.success("Opened %s (%s)", d.Title, shortID(d.ID))
	return nil
}

func (a *App) moveDeal(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("stage <deal-id> <stage>")
	}
	id, err := resolveID(args[0], a.dealIDs())
	if err != nil {
		return err
	}
	stage, err := parseStage(args[1])
	if err != nil {
		return err
	}

	if err := a.crm.MoveDeal(ctx, id, stage); err != nil {
		return err
	}
	a.success("Moved to %s", stage)
	return nil
}
