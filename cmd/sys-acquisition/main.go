package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	sysacquisition "github.com/Shilirayen01/sys-acquisition"
	"github.com/Shilirayen01/sys-acquisition/internal/adapters/spool"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "spool":
		err = spoolCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("sys-acquisition %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./configs/config.yaml", "Path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sysacquisition.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := sysacquisition.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./configs/config.yaml", "Path to the configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := sysacquisition.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s is valid\n", *cfgPath)
	return nil
}

// spoolCommand reports the store-and-forward backlog so an operator can
// see at a glance what a recovery will replay.
func spoolCommand(args []string) error {
	fs := flag.NewFlagSet("spool", flag.ExitOnError)
	cfgPath := fs.String("config", "./configs/config.yaml", "Path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sysacquisition.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fsSpool, err := spool.NewFileSpool(cfg.Resilience.StoreForwardPath, cfg.Resilience.MaxLocalStorageRecords, stderrObs{})
	if err != nil {
		return err
	}

	batches, err := fsSpool.ListBatches()
	if err != nil {
		return err
	}
	records := 0
	for _, b := range batches {
		records += len(b.TagValues)
	}

	fmt.Printf("spool %s: %d batches, %d records (cap %d)\n",
		cfg.Resilience.StoreForwardPath, len(batches), records, cfg.Resilience.MaxLocalStorageRecords)
	for _, b := range batches {
		fmt.Printf("  %s  %s  %d records\n",
			b.Timestamp.Format("2006-01-02 15:04:05"), b.BatchID, len(b.TagValues))
	}
	return nil
}

// stderrObs is the minimal observability used by the offline spool
// inspection command.
type stderrObs struct{}

func (stderrObs) LogInfo(string, ...ports.Field) {}
func (stderrObs) LogWarn(msg string, _ ...ports.Field) {
	fmt.Fprintf(os.Stderr, "warn: %s\n", msg)
}
func (stderrObs) LogError(msg string, err error, _ ...ports.Field) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
func (stderrObs) LogCritical(msg string, err error, _ ...ports.Field) {
	fmt.Fprintf(os.Stderr, "critical: %s: %v\n", msg, err)
}
func (stderrObs) IncCounter(string, float64)     {}
func (stderrObs) SetGauge(string, float64)       {}
func (stderrObs) ObserveLatency(string, float64) {}

func printUsage() {
	fmt.Printf(`sys-acquisition

Usage:
  sys-acquisition <command> [flags]

Commands:
  run        Start the acquisition worker until SIGINT/SIGTERM
  validate   Load and validate a config file without starting the worker
  spool      Print the store-and-forward backlog for the configured path

Examples:
  sys-acquisition run -config ./configs/config.yaml
  sys-acquisition validate -config ./configs/config.yaml
  sys-acquisition spool -config ./configs/config.yaml
`)
}
