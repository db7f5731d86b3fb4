package main

import (
	"github.com/BioHazard786/bola/cmd/bola/cmd"
	"github.com/BioHazard786/bola/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init("error")
	cmd.Execute()
}
