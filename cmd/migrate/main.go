package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
)

// Runs AutoMigrate and seeds the system balance accounts.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	models.MigrateTable()

	if err := models.EnsureSystemBalanceAccounts(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "seed system accounts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migration complete")
}
