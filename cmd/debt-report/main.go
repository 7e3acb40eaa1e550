package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
	"bitbucket.org/mmdatafocus/erp_backend/workflow"
)

// Exports all open debts to an xlsx file.
func main() {
	out := flag.String("out", "debts.xlsx", "Output file path")
	flag.Parse()

	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())

	rows, err := workflow.ExportDebtReport(ctx, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d debts to %s\n", rows, *out)
}
