// gamepi serves a local page of game images and flashes the chosen one
// onto the attached Arduino.
package main

import (
	"os"

	"github.com/teslashibe/go-gamepi/cmd/gamepi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
