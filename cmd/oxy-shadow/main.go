package main

import (
	"os"
)

const appName = "oxy-shadow"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
