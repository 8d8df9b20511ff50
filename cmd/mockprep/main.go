package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/mockprep/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mockprep: %v\n", err)
		os.Exit(1)
	}
}
