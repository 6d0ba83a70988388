// Command agendactl drives a running agendaprint daemon through its control
// API: manual prints, status, reload, printer test, preview, priorities and
// the local task list.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if err := Execute(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "agendactl:", err)
		os.Exit(1)
	}
}
