package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/dataio-go/internal/bootstrap"
	"github.com/target/dataio-go/internal/domain/model"
	"github.com/target/dataio-go/internal/domain/state"
)

type createJobOptions struct {
	DataPath string
	SpecPath string
	Request  model.CreateJobRequest
	Timeout  time.Duration
}

type jobOptions struct {
	ID      int64
	RawJSON bool
	Timeout time.Duration
}

func runCreateJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateJobFlags(args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(opts.DataPath)
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}
	req := opts.Request
	if opts.SpecPath != "" {
		if req, err = readCreateJobRequest(opts.SpecPath); err != nil {
			return err
		}
	}

	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		file, uploadErr := svc.StateStore.UploadFile(ctx, data)
		if uploadErr != nil {
			return fmt.Errorf("upload data file: %w", uploadErr)
		}
		req.Specification.DataFile = file.ID

		job, createErr := svc.StateStore.CreateJob(ctx, &req)
		if createErr != nil {
			return fmt.Errorf("create job: %w", createErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "job created", "job_id", job.ID, "data_file", file.ID, "bytes", file.Size)
		return printJob(os.Stdout, job)
	})
}

func runShowJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("job", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		job, getErr := svc.StateStore.GetJob(ctx, opts.ID)
		if getErr != nil {
			return getErr
		}
		if opts.RawJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}
		return printJob(os.Stdout, job)
	})
}

func runAnnounceJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags("announce", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		if svc.Local == nil {
			return errors.New("announce needs a database connection; unset STATESTORE_URL")
		}
		if announceErr := svc.Local.AnnounceJob(ctx, opts.ID); announceErr != nil {
			return fmt.Errorf("announce job %d: %w", opts.ID, announceErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "job announced", "job_id", opts.ID)
		return nil
	})
}

func readCreateJobRequest(path string) (model.CreateJobRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.CreateJobRequest{}, fmt.Errorf("read job request: %w", err)
	}
	var req model.CreateJobRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return model.CreateJobRequest{}, fmt.Errorf("decode job request %s: %w", path, err)
	}
	return req, nil
}

func parseCreateJobFlags(args []string) (createJobOptions, error) {
	fs := flag.NewFlagSet("create-job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts   createJobOptions
		format string
		kind   string
	)
	spec := &opts.Request.Specification
	fs.StringVar(&opts.DataPath, "data", "", "Path of the raw data file to upload (required)")
	fs.StringVar(&opts.SpecPath, "request", "", "JSON file holding a complete job request; overrides the flags below")
	fs.StringVar(&format, "format", string(model.FormatLines), "Data format: lines or json-array")
	fs.StringVar(&spec.Charset, "charset", "utf8", "Character set of the data file")
	fs.StringVar(&spec.Destination, "destination", "", "Destination recorded on the job")
	fs.Int64Var(&spec.Submitter, "submitter", 0, "Submitter number")
	fs.StringVar(&kind, "kind", string(model.JobKindTransient), "Job kind: PERSISTENT, TRANSIENT or TEST")
	fs.IntVar(&spec.ChunkSize, "chunk-size", 0, "Items per chunk; 0 uses the default")
	fs.StringVar(&spec.SequenceKey, "sequence-key", "", "JSON field recorded as a per-chunk ordering hint")
	fs.Int64Var(&opts.Request.FlowID, "flow", 0, "Flow id")
	fs.Int64Var(&opts.Request.SinkID, "sink", 0, "Sink id")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration of the command")

	if err := fs.Parse(args); err != nil {
		return createJobOptions{}, err
	}
	if opts.DataPath == "" {
		return createJobOptions{}, errors.New("--data is required")
	}
	if opts.Timeout <= 0 {
		return createJobOptions{}, errors.New("--timeout must be greater than zero")
	}
	spec.Format = model.DataFormat(format)
	spec.Kind = model.JobKind(strings.ToUpper(kind))
	return opts, nil
}

func parseJobFlags(name string, args []string) (jobOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobOptions
	fs.Int64Var(&opts.ID, "id", 0, "Job id (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the job as JSON")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration of the command")

	if err := fs.Parse(args); err != nil {
		return jobOptions{}, err
	}
	if opts.ID <= 0 {
		return jobOptions{}, errors.New("--id is required")
	}
	if opts.Timeout <= 0 {
		return jobOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func printJob(w io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	status := "in progress"
	if job.Completed() {
		status = "completed " + job.CompletedAt.UTC().Format(time.RFC3339)
	}
	lines := []string{
		fmt.Sprintf("Job\t%d (version %d)", job.ID, job.Version),
		"Status\t" + status,
		fmt.Sprintf("Kind\t%s", job.Specification.Kind),
		fmt.Sprintf("Format\t%s (%s)", job.Specification.Format, job.Specification.Charset),
		fmt.Sprintf("Data file\t%s", job.Specification.DataFile),
		fmt.Sprintf("Flow\t%d v%d", job.FlowID, job.FlowVersion),
		fmt.Sprintf("Sink\t%d v%d", job.SinkID, job.SinkVersion),
		fmt.Sprintf("Partitioned\t%t (%d chunks, %d items)", job.EOJ, job.NumberOfChunks, job.NumberOfItems),
	}
	if job.HarvesterID != nil {
		lines = append(lines, fmt.Sprintf("Harvester\t%d", *job.HarvesterID))
	}
	for _, line := range lines {
		if err := writeln(tw, line); err != nil {
			return err
		}
	}
	if err := writeln(tw, "\nPhase\tSucceeded\tFailed\tIgnored\tPending\tActive\tEnded"); err != nil {
		return err
	}
	for _, phase := range state.Phases() {
		e := job.State.Element(phase)
		if err := writef(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%t\n",
			phase, e.Succeeded, e.Failed, e.Ignored, e.Pending, e.Active, e.Ended()); err != nil {
			return err
		}
	}
	return tw.Flush()
}
