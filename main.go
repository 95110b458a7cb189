package main

import (
	"os"

	"shadowhawk/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args))
}
