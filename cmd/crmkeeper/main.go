// Command crmkeeper is the interactive front end of the encrypted local CRM
// store.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/crmkeeper/internal/cli"
	"github.com/dmitrijs2005/crmkeeper/internal/config"
)

func main() {
	cfg := config.LoadConfig()

	ctx := context.Background()
	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("crmkeeper: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("crmkeeper: %v", err)
	}
}
