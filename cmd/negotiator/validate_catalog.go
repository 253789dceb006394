package main

import (
	"fmt"
	"os"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
)

func handleValidateCatalogCommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "validate-catalog" {
		return false
	}
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: negotiator validate-catalog /path/to/catalog.yaml")
		os.Exit(2)
	}
	cat, err := catalog.Load(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %s (%d products, %d suppliers)\n", os.Args[2], len(cat.Products()), len(cat.Suppliers()))
	os.Exit(0)
	return true
}
