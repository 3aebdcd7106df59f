// Command blobtailer polls an Azure Blob Storage container for new log
// blobs, streams their lines to a configurable sink, and tracks per-blob
// processing state using one of three pluggable strategies.
package main

import (
	"os"

	"github.com/blobtailer/blobtailer/cmd/blobtailer/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
