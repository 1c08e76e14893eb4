// Command api runs the marketplace HTTP API and its hold reconciliation worker.
package main

import (
	"fmt"
	"os"

	"github.com/mycarconcierge/marketplace/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "marketplace api: %v\n", err)
		os.Exit(1)
	}
}
