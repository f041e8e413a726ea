// Package main provides the contentsync command-line entry point.
// It drains the pending queue once and prints the pass summary as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kimhsiao/memonexus/contentsync/internal/config"
	"github.com/kimhsiao/memonexus/contentsync/internal/crypto"
	"github.com/kimhsiao/memonexus/contentsync/internal/db"
	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
	"github.com/kimhsiao/memonexus/contentsync/internal/logging"
	syncpkg "github.com/kimhsiao/memonexus/contentsync/internal/sync"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/queue"
	"github.com/kimhsiao/memonexus/contentsync/internal/sync/transport"
)

// Version is set at build time
var Version = "0.1.0"

// report is printed after a pass.
type report struct {
	Summary   syncpkg.SyncSummary `json:"summary"`
	Remaining int                 `json:"remaining"`
	LastError string              `json:"last_error,omitempty"`
}

func main() {
	configPath := flag.String("config", os.Getenv("CONTENTSYNC_CONFIG"), "path to a config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	seal := flag.Bool("seal", false, "read a credential from stdin and print it sealed for transport.access_key/secret_key")
	machineID := flag.String("machine-id", "", "machine ID to seal for (default: this machine)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("contentsync v%s\n", Version)
		return
	}

	if *seal {
		if err := sealSecret(os.Stdin, os.Stdout, *machineID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	// stdout carries the report
	logging.Init(os.Stderr, logging.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, *configPath, os.Stdout)
	if err != nil {
		logging.ErrorWithCode("Sync run failed", string(apperrors.CodeOf(err)), err)
	}
	_ = logging.Get().Sync()
	os.Exit(code)
}

// run loads the configuration, drains the durable queue once and writes the
// report to out. The exit code is 1 when the pass left failures and 2 on setup errors.
func run(ctx context.Context, configPath string, out io.Writer) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 2, err
	}
	logging.SetLevel(cfg.LogLevel())

	if !cfg.Sync.Durable {
		return 2, apperrors.New(apperrors.ErrConfigInvalid, "sync.durable must be enabled: an in-memory queue is always empty at startup")
	}

	database, err := db.OpenMigrated(cfg.DataDir)
	if err != nil {
		return 2, err
	}
	defer database.Close()

	q, err := queue.NewDurableQueue(ctx, cfg.Sync.MaxQueueSize, db.NewRepository(database.DB))
	if err != nil {
		return 2, err
	}

	s3, err := transport.NewS3Transport(ctx, cfg.S3Config())
	if err != nil {
		return 2, apperrors.Wrap(apperrors.ErrSyncNotConfigured, "failed to configure transport", err)
	}
	t := transport.NewThrottled(s3, cfg.Transport.RatePerSecond, cfg.Transport.Burst)

	service := syncpkg.NewService(q, t, cfg.ServiceConfig())
	return syncOnce(ctx, service, out)
}

// sealSecret reads one credential line from in and writes its sealed form to out.
func sealSecret(in io.Reader, out io.Writer, machineID string) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}

	sealed, err := crypto.Seal(strings.TrimSpace(line), machineID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, sealed)
	return err
}

// syncOnce runs one pass and writes the report.
func syncOnce(ctx context.Context, service syncpkg.ContentSyncService, out io.Writer) (int, error) {
	summary := service.SyncPending(ctx)

	r := report{Summary: summary, Remaining: service.PendingCount()}
	if err := service.LastError(); err != nil && summary.Failed > 0 {
		r.LastError = err.Error()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return 2, err
	}

	if summary.Failed > 0 {
		return 1, nil
	}
	return 0, nil
}
