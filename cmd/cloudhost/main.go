package main

import (
	"os"

	"github.com/ben-moore/lokad-cloud/cmd/cloudhost/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
