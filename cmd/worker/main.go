package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/kinsync/internal/app"
	"github.com/dmitrijs2005/kinsync/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	a, err := app.NewApp(ctx, cfg, true)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	a.Run(ctx)

}
