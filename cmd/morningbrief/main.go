package main

import (
	"morningbrief/cmd/handlers"
	"morningbrief/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
