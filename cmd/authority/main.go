package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/geoupload/internal/authority"
	"github.com/dmitrijs2005/geoupload/internal/authority/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}

	app, err := authority.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	app.Run(ctx)

}
