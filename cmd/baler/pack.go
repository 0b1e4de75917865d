package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/balerhq/baler/internal/archive"
	"github.com/balerhq/baler/internal/archive/encoder"
	"github.com/balerhq/baler/internal/archive/sinks"
)

var packCommand = &cli.Command{
	Name:  "pack",
	Usage: "Read filenames from stdin and stream them into an archive",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   string(encoder.DefaultFormat),
			Usage:   "Archive format (tar.lz4, tar.zst, tar.gz, tar, zip)",
		},
		&cli.IntFlag{
			Name:  "buffer-size",
			Value: archive.DefaultBufferSize,
			Usage: "Read buffer capacity in bytes",
		},
		&cli.IntFlag{
			Name:  "level",
			Usage: "Compression level (0 keeps the codec default)",
		},
		&cli.BoolFlag{
			Name:  "block",
			Usage: "Archive each file in one blocking call instead of bounded steps",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "sink",
			UsageText: "Where the archive goes: file or stderr",
		},
		&cli.StringArg{
			Name:      "output",
			UsageText: "Output base name; the format extension is appended",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		sinkKind := command.StringArg("sink")
		output := command.StringArg("output")
		if sinkKind == "" || output == "" {
			return fmt.Errorf("usage: baler pack <file|stderr> <output>")
		}

		format, err := encoder.ParseFormat(command.String("format"))
		if err != nil {
			return err
		}

		cfg := archive.Config{
			Format:     format,
			BufferSize: int(command.Int("buffer-size")),
			Level:      int(command.Int("level")),
		}

		var w *archive.Writer
		switch sinkKind {
		case "file":
			w, err = archive.OpenFile(output, cfg, archive.WithLogger(logger.Named("archive")))
		case "stderr":
			w, err = archive.OpenCallbacks(stderrCallbacks(logger), cfg, archive.WithLogger(logger.Named("archive")))
		default:
			return fmt.Errorf("unknown sink %q (expected file or stderr)", sinkKind)
		}
		if err != nil {
			return err
		}

		mode := archive.ModeStep
		if command.Bool("block") {
			mode = archive.ModeBlock
		}

		if err := packLoop(ctx, w, mode); err != nil {
			w.Close()
			return err
		}

		return w.Close()
	},
}

// packLoop reads filenames from stdin until "exit" or end of input, queueing
// each and driving the archive to a finished state before prompting again.
func packLoop(ctx context.Context, w *archive.Writer, mode archive.Mode) error {
	interactive := isInteractive(ctx)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Fprint(os.Stderr, "Enter filename: ")
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			break
		}

		if !w.AddFile(line) {
			fmt.Fprintln(os.Stderr, "Invalid file input")
			continue
		}

		start := time.Now()
		for {
			state, err := w.Write(ctx, mode)
			if err != nil {
				return err
			}
			if state == archive.StateFinished {
				break
			}
		}
		fmt.Fprintf(os.Stderr, "Took %dms\n", time.Since(start).Milliseconds())
	}

	return scanner.Err()
}

// stderrCallbacks adapts stderr to the caller-managed callback sink, the
// destination for archives that should bypass the filesystem.
func stderrCallbacks(logger *zap.Logger) sinks.Callbacks {
	return sinks.Callbacks{
		UserData: os.Stderr,
		Open: func(any) error {
			logger.Debug("callback sink opened")
			return nil
		},
		Write: func(userdata any, p []byte) (int, error) {
			return userdata.(*os.File).Write(p)
		},
		Close: func(any) error {
			logger.Debug("callback sink closed")
			return nil
		},
		Free: func(any) error {
			logger.Debug("callback sink released")
			return nil
		},
	}
}
