// Package flags configures command-line flags and logging that are common
// across every binary in this module (router, manager, vehicle apps).
package flags

import (
	"flag"
	"fmt"
	"os"

	"github.com/bluefin-robotics/middleware/pkg/version"
	log "github.com/sirupsen/logrus"
)

// ConfigureAndParse adds flags that are common to all go processes in this
// module and calls cmd.Parse(args). It should be called after all other
// flags have been registered on cmd.
func ConfigureAndParse(cmd *flag.FlagSet, args []string) {
	logLevel := cmd.String("log-level", log.InfoLevel.String(),
		"log level, must be one of: panic, fatal, error, warn, info, debug")
	logJSON := cmd.Bool("log-json", false, "emit logs as JSON instead of text")
	printVersion := cmd.Bool("version", false, "print version and exit")

	cmd.Parse(args)

	setLogLevel(*logLevel)
	if *logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	maybePrintVersionAndExit(*printVersion)
}

func setLogLevel(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log-level: %s", logLevel)
	}
	log.SetLevel(level)
}

func maybePrintVersionAndExit(printVersion bool) {
	if printVersion {
		fmt.Println(version.Version)
		os.Exit(0)
	}
	log.Infof("running version %s", version.Version)
}
