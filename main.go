// The main package for the ingestd executable.
package main

import (
	"github.com/meridian-news/ingest/cmd"
)

func main() {
	cmd.Execute()
}
