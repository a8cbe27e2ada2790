// Command logconf checks, converts and runs log manager configuration
// files, in properties or YAML format.
//
// The command's own logging is configured with the LOGCONF_LOG environment
// variable, in flume's JSON format, e.g. {"level":"dbg","handler":"term"}.
package main

import (
	"fmt"
	"os"

	"github.com/ThalesGroup/flume/v2"
)

var logger = flume.New("logconf.cmd")

func main() {
	if err := flume.ConfigFromEnv("LOGCONF_LOG"); err != nil {
		fmt.Fprintln(os.Stderr, "invalid LOGCONF_LOG:", err)
		os.Exit(2)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
