package main

import (
	"os"

	"github.com/ruleforge/ruleforge/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
