package main

import (
	"os"

	"github.com/goalmate/backend/backend"
	"github.com/goalmate/backend/cli"
)

func main() {
	// Run the interactive console when asked, otherwise run the backend.
	if len(os.Args) > 1 && os.Args[1] == "console" {
		cli.RunCLI()
		return
	}
	backend.RunBackend()
}
