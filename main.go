package main

import (
	"os"

	"github.com/parentsync/parentsync/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
