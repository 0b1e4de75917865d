package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	v1 "github.com/balerhq/baler/apis/v1"
	"github.com/balerhq/baler/internal/archive"
	"github.com/balerhq/baler/internal/archive/encoder"
	"github.com/balerhq/baler/internal/archive/filter"
)

const progressInterval = 2 * time.Second

type Runner struct {
	logger *zap.Logger
	job    v1.PackJob
	fs     afero.Fs
	stdout io.Writer
	filter *filter.Filter
}

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParsePackJob parses a YAML or JSON job document and validates it against
// the constraints declared on the v1.PackJob struct. It returns a validated
// PackJob or an error if parsing or validation fails.
func ParsePackJob(data []byte) (v1.PackJob, error) {
	var job v1.PackJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.PackJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if err := defaultValidator.Struct(job); err != nil {
		return v1.PackJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	return job, nil
}

type Option func(*Runner)

// WithFs overrides the filesystem inputs are read from and file
// destinations are written to.
func WithFs(fs afero.Fs) Option {
	return func(r *Runner) {
		r.fs = fs
	}
}

// WithStdout overrides the writer backing the stdout destination.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

func New(logger *zap.Logger, job v1.PackJob, opts ...Option) (*Runner, error) {
	logger.Info("creating runner", zap.String("job_name", job.Metadata.Name))

	r := &Runner{
		logger: logger,
		job:    job,
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if job.Spec.Filter != "" {
		f, err := filter.Compile(job.Spec.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter: %w", err)
		}
		r.filter = f
	}

	return r, nil
}

// Run expands the job's inputs, streams them into the configured
// destination and closes the archive. Unless the job asks for blocking
// writes, the archive advances one bounded step at a time so cancellation
// takes effect between steps.
func (r *Runner) Run(ctx context.Context) (err error) {
	sink, err := r.buildSink(ctx)
	if err != nil {
		return fmt.Errorf("failed to build sink: %w", err)
	}

	cfg, blocking, err := archiveConfig(r.job.Spec.Archive)
	if err != nil {
		return err
	}

	w, err := archive.Open(sink, cfg,
		archive.WithFs(r.fs),
		archive.WithLogger(r.logger.Named("archive")))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	queued, err := r.enqueueInputs(w)
	if err != nil {
		return err
	}
	r.logger.Info("inputs queued", zap.Int("files", queued), zap.String("destination", sink.Name()))

	if blocking {
		if _, err := w.Write(ctx, archive.ModeBlock); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
	} else if err := r.drive(ctx, w); err != nil {
		return err
	}

	stats := w.Stats()
	r.logger.Info("archive complete",
		zap.Int("entries", stats.EntriesDone),
		zap.Int64("bytes_read", stats.BytesRead))
	return nil
}

// drive advances the archive one step at a time, logging progress at a
// coarse interval.
func (r *Runner) drive(ctx context.Context, w *archive.Writer) error {
	lastProgress := time.Now()
	for {
		state, err := w.Write(ctx, archive.ModeStep)
		if err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		if state == archive.StateFinished {
			return nil
		}

		if time.Since(lastProgress) >= progressInterval {
			stats := w.Stats()
			r.logger.Info("archiving",
				zap.String("current", stats.CurrentPath),
				zap.Int64("remaining_bytes", stats.CurrentRemaining),
				zap.Int("pending_files", stats.Pending),
				zap.Int("entries_done", stats.EntriesDone))
			lastProgress = time.Now()
		}
	}
}

// enqueueInputs expands the job inputs to concrete files and queues them.
// Unusable paths are logged and skipped rather than failing the run.
func (r *Runner) enqueueInputs(w *archive.Writer) (int, error) {
	queued := 0
	for _, input := range r.job.Spec.Inputs {
		paths, err := r.expandInput(input)
		if err != nil {
			return queued, fmt.Errorf("failed to expand input %s: %w", input.Path, err)
		}

		for _, path := range paths {
			ok, err := r.admit(path)
			if err != nil {
				return queued, err
			}
			if !ok {
				r.logger.Debug("filtered out", zap.String("path", path))
				continue
			}

			if !w.AddFile(path) {
				r.logger.Warn("skipping unusable file", zap.String("path", path))
				continue
			}
			queued++
		}
	}
	return queued, nil
}

// expandInput resolves one input to an ordered list of regular files.
func (r *Runner) expandInput(input v1.Input) ([]string, error) {
	info, err := r.fs.Stat(input.Path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{input.Path}, nil
	}

	var paths []string
	if input.Recursive {
		err = afero.Walk(r.fs, input.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return paths, nil
	}

	entries, err := afero.ReadDir(r.fs, input.Path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Mode().IsRegular() {
			paths = append(paths, filepath.Join(input.Path, entry.Name()))
		}
	}
	return paths, nil
}

// admit applies the job's filter to a path. Without a filter everything is
// admitted.
func (r *Runner) admit(path string) (bool, error) {
	if r.filter == nil {
		return true, nil
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		// Let AddFile report the unusable path.
		return true, nil
	}

	ok, err := r.filter.Match(path, info.Size())
	if err != nil {
		return false, fmt.Errorf("failed to apply filter: %w", err)
	}
	return ok, nil
}

// archiveConfig maps the job's archive spec to writer configuration.
func archiveConfig(spec *v1.ArchiveSpec) (archive.Config, bool, error) {
	var cfg archive.Config
	if spec == nil {
		return cfg, false, nil
	}

	if spec.Format != "" {
		format, err := encoder.ParseFormat(spec.Format)
		if err != nil {
			return cfg, false, fmt.Errorf("failed to parse format: %w", err)
		}
		cfg.Format = format
	}
	cfg.BufferSize = spec.BufferSize
	cfg.Level = spec.Level
	return cfg, spec.Blocking, nil
}
