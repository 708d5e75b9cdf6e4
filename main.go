package main

import (
	"os"

	"github.com/raysh454/browserfetch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
