package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	redisadapter "github.com/target/dataio-go/internal/adapters/redis"
	"github.com/target/dataio-go/internal/bootstrap"
	"github.com/target/dataio-go/internal/data"
	"github.com/target/dataio-go/internal/harvester"
	"github.com/target/dataio-go/internal/messaging"
)

type walOptions struct {
	HarvesterID int64
	Dir         string
	Discard     bool
	Yes         bool
}

func runWAL(cmdCtx *commandContext, args []string) error {
	opts, err := parseWALFlags(args, cmdCtx.Config.Harvester.WALDir)
	if err != nil {
		return err
	}
	wal, err := harvester.OpenWAL(opts.Dir, opts.HarvesterID)
	if err != nil {
		return err
	}
	entry, err := wal.Read()
	if err != nil {
		return err
	}
	if entry == nil {
		return writef(os.Stdout, "no pending entry in %s\n", wal.Path())
	}
	if printErr := printWALEntry(os.Stdout, wal.Path(), entry); printErr != nil {
		return printErr
	}
	if !opts.Discard {
		return nil
	}

	if !opts.Yes {
		intro := "Discarding drops the harvested records unless the job was already created."
		if confirmErr := confirm(intro); confirmErr != nil {
			return confirmErr
		}
	}
	if commitErr := wal.Commit(); commitErr != nil {
		return fmt.Errorf("discard wal entry: %w", commitErr)
	}
	if entry.StagingFile != "" {
		if rmErr := os.Remove(entry.StagingFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			cmdCtx.Logger.Warn("remove staging file failed", "path", entry.StagingFile, "error", rmErr)
		}
	}
	cmdCtx.Logger.Info("wal entry discarded", "harvester_id", opts.HarvesterID)
	return nil
}

func parseWALFlags(args []string, defaultDir string) (walOptions, error) {
	fs := flag.NewFlagSet("wal", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts walOptions
	fs.Int64Var(&opts.HarvesterID, "harvester", 0, "Harvester id (required)")
	fs.StringVar(&opts.Dir, "dir", defaultDir, "WAL directory")
	fs.BoolVar(&opts.Discard, "discard", false, "Remove the pending entry and its staging file")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return walOptions{}, err
	}
	if opts.HarvesterID <= 0 {
		return walOptions{}, errors.New("--harvester is required")
	}
	if opts.Dir == "" {
		return walOptions{}, errors.New("--dir is required")
	}
	return opts, nil
}

func printWALEntry(w io.Writer, path string, entry *harvester.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	next := "-"
	if entry.NextPublicationDate != nil {
		next = entry.NextPublicationDate.UTC().Format(time.RFC3339Nano)
	}
	rows := [][2]string{
		{"WAL", path},
		{"Harvester", fmt.Sprint(entry.HarvesterID)},
		{"Written", entry.WrittenAt.UTC().Format(time.RFC3339)},
		{"Records", fmt.Sprint(entry.Records)},
		{"Staging file", entry.StagingFile},
		{"Flow / sink", fmt.Sprintf("%d / %d", entry.Request.FlowID, entry.Request.SinkID)},
		{"Next publication date", next},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type queueStatsRow struct {
	Queue   string
	Ready   int64
	Leased  int64
	Dead    int64
	Missing bool
}

func runQueueStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("queue-stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration of the command")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, *timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		rows, err := collectQueueStats(ctx, svc.Transport)
		if err != nil {
			return err
		}
		return printQueueStats(os.Stdout, rows)
	})
}

func collectQueueStats(ctx context.Context, transport messaging.Transport) ([]queueStatsRow, error) {
	rows := make([]queueStatsRow, 0, len(messaging.AllQueues()))
	for _, queue := range messaging.AllQueues() {
		row := queueStatsRow{Queue: queue}
		switch t := transport.(type) {
		case *data.MessageQueueRepo:
			s, err := t.Stats(ctx, queue)
			if err != nil {
				return nil, fmt.Errorf("stats for %s: %w", queue, err)
			}
			row.Ready, row.Leased, row.Dead = s.Ready, s.Leased, s.Dead
		case *redisadapter.StreamTransport:
			s, err := t.Stats(ctx, queue)
			if err != nil {
				return nil, fmt.Errorf("stats for %s: %w", queue, err)
			}
			row.Ready, row.Leased, row.Dead = s.Length-s.Pending, s.Pending, s.Dead
		case *messaging.MemoryTransport:
			// In-flight deliveries are not tracked per queue in memory.
			row.Ready = int64(t.Len(queue))
			for _, d := range t.DeadLetters() {
				if d.Queue == queue {
					row.Dead++
				}
			}
		default:
			row.Missing = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func printQueueStats(w io.Writer, rows []queueStatsRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "QUEUE\tREADY\tLEASED\tDEAD"); err != nil {
		return err
	}
	for _, row := range rows {
		if row.Missing {
			if err := writef(tw, "%s\t-\t-\t-\n", row.Queue); err != nil {
				return err
			}
			continue
		}
		if err := writef(tw, "%s\t%d\t%d\t%d\n", row.Queue, row.Ready, row.Leased, row.Dead); err != nil {
			return err
		}
	}
	return tw.Flush()
}
