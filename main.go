package main

import (
	"github.com/landrop/landrop/cmd"
	"github.com/landrop/landrop/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
