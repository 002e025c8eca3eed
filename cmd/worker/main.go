package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/geoupload/internal/worker"
	"github.com/dmitrijs2005/geoupload/internal/worker/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(1)
	}

	app, err := worker.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	app.Run(ctx)

}
