package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/internal/checkpoint"
	"github.com/5566cannotdead/OSSRanking/internal/crawler"
	githubapi "github.com/5566cannotdead/OSSRanking/internal/github_api"
	"github.com/5566cannotdead/OSSRanking/internal/report"
	"github.com/5566cannotdead/OSSRanking/internal/store"
	"github.com/5566cannotdead/OSSRanking/pkg/kafka"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
)

func main() {
	mode := flag.String("mode", "crawl", "What to run (crawl, enrich, report)")
	publish := flag.Bool("publish", false, "Publish discovered developers to kafka")
	flag.Parse()

	ctx := context.Background()
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := log.NewCslLogger()
	caller := githubapi.NewCaller(logger, config)
	checkpoints, _ := checkpoint.NewStore(logger, config)
	users, _ := store.NewUserStore(logger, config)

	switch *mode {
	case "crawl":
		c, _ := crawler.FactoryCrawler("v1", logger, config, caller, checkpoints, users)
		if *publish {
			producer := kafka.NewProducer(config, logger, config.Kafka.DeveloperTopic)
			c.(*crawler.CrawlerV1).Publisher = producer
		}
		summary, err := c.Crawl(ctx)
		if err != nil {
			logger.Error(ctx, "Crawl failed: %v", err)
			os.Exit(1)
		}
		if summary.Done {
			logger.Info(ctx, "Survey complete, run -mode=enrich next")
		}

	case "enrich":
		e, _ := crawler.NewEnricher(logger, config, caller, users)
		summary, err := e.Enrich(ctx)
		if err != nil {
			logger.Error(ctx, "Enrichment failed: %v", err)
			os.Exit(1)
		}
		if summary.Done {
			logger.Info(ctx, "Enrichment complete, run -mode=report next")
		}

	case "report":
		ranked, err := users.Load(ctx)
		if err != nil {
			logger.Error(ctx, "Cannot load users: %v", err)
			os.Exit(1)
		}
		writer, _ := report.NewWriter(logger, config)
		if err := writer.Write(ctx, ranked); err != nil {
			logger.Error(ctx, "Report failed: %v", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown mode %q, use crawl, enrich or report\n", *mode)
		os.Exit(1)
	}
}
