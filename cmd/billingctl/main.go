package main

import (
	"log/slog"
	"os"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		slog.Error("billingctl failed", logger.Error(err))
		os.Exit(1)
	}
}
