// fiscore CLI entry point.
package main

import (
	"os"

	"github.com/contabil/fiscore/internal/interfaces/cli"
)

func main() {
	os.Exit(cli.Execute())
}
