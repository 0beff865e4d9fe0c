// Command validate runs the integrity report against the live database
// and exits non-zero when a required check fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/docvault/docvault/engine/docstore"
	"github.com/docvault/docvault/engine/report"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn     = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN")
		dims    = flag.Int("dims", 3072, "expected embedding dimension")
		samples = flag.Int("samples", 3, "content samples to show")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("-dsn or DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := docstore.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer store.Close()

	r := report.Run(ctx, store, report.Opts{WantDims: *dims, Samples: *samples})
	fmt.Print(r.Render())
	if !r.Passed() {
		os.Exit(1)
	}
}
