package main

import (
	"litgate/cmd/cmd"
	"litgate/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
