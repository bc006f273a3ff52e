package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/venicegeo/bf-scene-catalog/util"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	logContext := &util.BasicLogContext{LogDir: os.Getenv("LOG_DIR")}
	if out, err := util.OpenLogOutput(logContext); err == nil {
		defer out.Close()
		util.SetLogger(util.NewLogger(out, slog.LevelInfo))
	} else {
		fmt.Fprintln(os.Stderr, "Could not open log directory, logging to stderr:", err)
	}

	util.LogAudit(logContext, util.LogAuditInput{Actor: "main()", Action: "startup", Actee: "self", Message: "Application Startup", Severity: util.INFO})
	err := createCliApp().Run(os.Args)
	if err != nil {
		util.LogAlert(logContext, fmt.Sprintf("Error executing CLI app: %v", err))
		os.Exit(1)
	}
}
