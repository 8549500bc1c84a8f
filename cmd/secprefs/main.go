// secprefs reads and writes secure preferences stores.
package main

import (
	"os"

	"github.com/chrisrueger/equinox/common/util"
)

func main() {
	cmd := newApp(nil).rootCommand()
	if err := cmd.Execute(); err != nil {
		util.Errorf("%v", err)
		os.Exit(exitCode(err))
	}
}
