package main

import (
	"os"

	"github.com/meridianhealth/adjudicator/cmd/adjudicator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
