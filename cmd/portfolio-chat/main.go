package main

import (
	"os"

	"portfolio-chat/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
