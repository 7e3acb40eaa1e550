package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
	"bitbucket.org/mmdatafocus/erp_backend/workflow"
)

// Posts today's slice of every enrolled counterparty's monthly charge.
// Intended to run once a day from a scheduler; the redis lock makes
// overlapping runs harmless.
func main() {
	loop := flag.Bool("loop", false, "Keep running, charging once per day at midnight UTC")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	runOnce := func() {
		ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
		ctx = utils.SetUserNameInContext(ctx, "System")

		charged, err := workflow.RunAutoCharge(ctx, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "auto charge failed: %v\n", err)
			if !*loop {
				os.Exit(1)
			}
			return
		}
		fmt.Printf("charged %d counterparties\n", charged)
	}

	runOnce()
	if !*loop {
		return
	}

	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		time.Sleep(time.Until(next))
		runOnce()
	}
}
