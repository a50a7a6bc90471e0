package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/libsync/internal/server"
	"github.com/dmitrijs2005/libsync/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(context.Background())
}
