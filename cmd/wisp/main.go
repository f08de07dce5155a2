// Command wisp builds and serves front-end assets
package main

import (
	"context"
	"os"

	"github.com/poltergeist/wisp/pkg/cli"
	"github.com/poltergeist/wisp/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := cli.NewConfig()
	cfg.Version = version

	if err := cli.NewCLI(cfg).ExecuteContext(context.Background(), os.Args[1:]); err != nil {
		logger.NewConsoleLogger().Error(err.Error())
		os.Exit(1)
	}
}
