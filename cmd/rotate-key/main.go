// rotate-key creates a successor signing key pair and stores it. Run it
// from a scheduler or an operator shell; issuers pick the new pair up as
// their key caches expire, and the previous pair keeps verifying through
// its grace period.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"courtside.org/internal/audit"
	"courtside.org/internal/auth"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("COURTSIDE_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or COURTSIDE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := auth.NewPGStore(db)
	pair, err := auth.Rotate(ctx, store.SigningKeys(ctx), time.Now())
	if err != nil {
		log.Fatalf("rotate signing key: %v", err)
	}

	_ = audit.LogEvent(ctx, "auth.key.rotated", map[string]any{
		"key_id":    pair.ID,
		"algorithm": pair.Algorithm,
	})
	log.Printf("created signing key %s (%s)", pair.ID, pair.Algorithm)
}
