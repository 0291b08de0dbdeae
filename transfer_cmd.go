package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/olekukonko/tablewriter"
	limiter "github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	log "github.com/sirupsen/logrus"

	"github.com/memberlift/memberlift/auth/storage"
	"github.com/memberlift/memberlift/discord"
	"github.com/memberlift/memberlift/transfer"
)

// Run processes every stored user once and prints the batch outcome.
func (c *TransferCmdConfig) Run() error {
	ctx := context.Background()

	clientConf := c.clientConfig()
	if err := clientConf.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	store, err := storage.NewFileStore(c.Storage)
	if err != nil {
		return trace.Wrap(err)
	}

	client := discord.NewClient(clientConf, clockwork.NewRealClock())
	if err := client.CheckHealth(ctx); err != nil {
		return trace.Wrap(err)
	}

	var rateLimiter limiter.Store
	if c.RateLimit > 0 {
		rateLimiter, err = memorystore.New(&memorystore.Config{
			Tokens:   uint64(c.RateLimit),
			Interval: time.Second,
		})
		if err != nil {
			return trace.Wrap(err)
		}
	}

	orchestrator, err := transfer.NewOrchestrator(transfer.Config{
		Store:            store,
		Provider:         client,
		Concurrency:      c.Concurrency,
		ProgressInterval: c.ProgressInterval,
		RateLimiter:      rateLimiter,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	log.WithField("guild_id", c.GuildID).Info("Starting the transfer batch")
	report, err := orchestrator.Run(ctx, c.GuildID)
	if err != nil {
		return trace.Wrap(err)
	}

	printReport(report)
	return nil
}

func printReport(report transfer.Report) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Transferred", "Failed", "Total"})
	table.Append([]string{
		strconv.Itoa(report.Transferred),
		strconv.Itoa(report.Failed),
		strconv.Itoa(report.Total),
	})
	table.Render()
}
