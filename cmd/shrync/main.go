// Command shrync runs the library watcher, transcode worker pool, and
// HTTP API as a single long-running process.
package main

import (
	"os"

	"github.com/shrync/shrync/cmd/shrync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
