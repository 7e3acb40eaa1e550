package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// Imports serial codes from an xlsx file into a new markup filter bound to
// one product. Column A of the first sheet holds the codes.
func main() {
	productId := flag.Int("product-id", 0, "Required: product the codes belong to")
	file := flag.String("file", "", "Required: path to the xlsx file")
	name := flag.String("name", "", "Filter name (defaults to the file name)")
	flag.Parse()

	if *productId <= 0 || strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--product-id and --file are required")
		os.Exit(1)
	}

	filterName := strings.TrimSpace(*name)
	if filterName == "" {
		filterName = strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	ctx = utils.SetUserNameInContext(ctx, "System")

	filter, created, err := models.ImportMarkupsFromXLSX(ctx, filterName, *productId, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	free, err := models.CountFreeMarkupsByFilter(ctx, filter.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count free codes: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("filter %d (%s): %d new codes, %d free\n", filter.ID, filter.Name, created, free)
}
