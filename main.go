package main

import (
	"github.com/joho/godotenv"

	"momentum-alerts/internal/cli"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()
	cli.Execute()
}
