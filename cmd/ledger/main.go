package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/api"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/app"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/config"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/domain"
	"github.com/TeneoProtocolAI/teneo-tax-ledger/internal/core/service"
	log "github.com/sirupsen/logrus"
)

func main() {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	wallet := fs.String("wallet", "", "wallet address")
	from := fs.String("from", "", "first day, YYYY-MM-DD or RFC 3339")
	to := fs.String("to", "", "last day, YYYY-MM-DD or RFC 3339")
	tags := fs.String("tags", "", "comma separated tags to keep, e.g. Swap,Fee")
	progress := fs.Bool("progress", false, "log progress to stderr")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	log.SetOutput(os.Stderr)

	l := log.WithFields(log.Fields{
		"package": "main",
		"func":    "main",
	})

	req := api.LedgerRequest{Wallet: *wallet, From: *from, To: *to}
	if *tags != "" {
		req.Tags = strings.Split(*tags, ",")
	}
	input, err := req.Input()
	if err != nil {
		fs.Usage()
		l.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, cleanup, err := app.Build(ctx, cfg)
	if err != nil {
		l.Fatal(err)
	}
	defer cleanup()

	flagCancel := service.NewCancelFlag()
	go func() {
		<-ctx.Done()
		flagCancel.Cancel()
	}()

	opts := domain.RunOptions{Cancel: flagCancel}
	if *progress {
		opts.Progress = func(p domain.Progress) {
			l.WithField("run_id", p.RunID).Infof("%s %d/%d", p.Stage, p.Done, p.Total)
		}
	}

	out, err := ledger.Run(ctx, input, opts)
	if err != nil {
		cleanup()
		l.Fatalf("ledger run failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
