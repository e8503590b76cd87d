//go:build windows

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(
		os.Stderr,
		"sockwatch reads socket tables from procfs and does not run on Windows.\n\nOn macOS and FreeBSD it builds, but the probe reports itself unavailable.",
	)
	os.Exit(1)
}
