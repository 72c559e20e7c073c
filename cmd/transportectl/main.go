package main

import (
	"fmt"
	"os"

	"github.com/DiegoMartinotti/gestion-transporte-sub006/internal/cli"
	_ "github.com/DiegoMartinotti/gestion-transporte-sub006/internal/importer/entities" // Register all entity definitions
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
