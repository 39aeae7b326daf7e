// Command migrate applies or rolls back the embedded Postgres schema.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/dishdash-auth/internal/infrastructure/postgres"
	"github.com/joho/godotenv"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	dsn := flag.String("dsn", "", "Postgres connection URL (defaults to DATABASE_URL)")
	flag.Parse()

	_ = godotenv.Load()
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if err := postgres.Migrate(*dsn, *direction); err != nil {
		log.Fatalf("migrate %s: %v", *direction, err)
	}
	log.Printf("migrate %s: done", *direction)
}
