package main

import (
	"github.com/joho/godotenv"

	cmd "github.com/rohmanhakim/spec-harvester/internal/cli"
)

func main() {
	// Optional .env for local runs; absence is not an error.
	_ = godotenv.Load()

	cmd.Execute()
}
