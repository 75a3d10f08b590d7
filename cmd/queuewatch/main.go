// queuewatch follows the GeForce NOW queue and notifies subscribers.
package main

import (
	"os"

	"github.com/gfnviewer/queuewatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
