package main

import (
	"os"

	"github.com/victorjacobs/go-rs485/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
