package main

import (
	"os"

	"github.com/Iron-Ham/shepherd/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
