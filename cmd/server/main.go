package main

import (
	"context"
	"log"

	"github.com/betenlace/affiliates/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	rt, err := bootstrap.NewRuntime(ctx)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}
	defer rt.Close()

	if err := rt.RunAPI(ctx); err != nil {
		log.Fatalf("run api: %v", err)
	}
}
