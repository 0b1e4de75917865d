package runner

import (
	"context"
	"fmt"

	"github.com/balerhq/baler/internal/archive/sinks"
)

// buildSink resolves the job's destination to a concrete sink. The context
// bounds any network destination's transfer, not just its construction.
// Returns an error if a destination block is present but no type is set.
func (r *Runner) buildSink(ctx context.Context) (sinks.Sink, error) {
	dest := r.job.Spec.Destination
	if dest == nil {
		// Default: a file named after the job in the working directory.
		return sinks.NewFileSink(r.fs, r.job.Metadata.Name), nil
	}

	switch {
	case dest.File != nil:
		return sinks.NewFileSink(r.fs, dest.File.Path), nil
	case dest.S3 != nil:
		return sinks.NewS3Sink(ctx, sinks.S3Config{
			Bucket:         dest.S3.Bucket,
			Key:            dest.S3.Key,
			Region:         dest.S3.Region,
			Endpoint:       dest.S3.Endpoint,
			Prefix:         dest.S3.Prefix,
			ForcePathStyle: dest.S3.ForcePathStyle,
		})
	case dest.HTTP != nil:
		return sinks.NewHTTPSink(ctx, sinks.HTTPConfig{
			URL:      dest.HTTP.URL,
			Headers:  dest.HTTP.Headers,
			Insecure: dest.HTTP.Insecure,
		})
	case dest.Stdout != nil:
		return sinks.NewStreamSink(r.stdout), nil
	default:
		return nil, fmt.Errorf("destination has no type specified")
	}
}
