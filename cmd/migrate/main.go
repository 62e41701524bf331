// migrate applies the workflow audit schema from embedded SQL; go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", migrate.Up, "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	version, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: version:", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println("schema: no migrations applied")
		return
	}
	fmt.Printf("schema: version=%d dirty=%t\n", version, dirty)
}
