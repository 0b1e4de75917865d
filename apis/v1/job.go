package v1

type PackJob struct {
	Kind     string      `yaml:"kind" json:"kind" validate:"required,eq=PackJob"`
	Metadata Metadata    `yaml:"metadata" json:"metadata"`
	Spec     PackJobSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name   string            `yaml:"name" json:"name" validate:"required"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

type PackJobSpec struct {
	// Archive configures the container format and write behavior.
	Archive *ArchiveSpec `yaml:"archive,omitempty" json:"archive,omitempty"`

	// Inputs lists the files and directories to archive, in order.
	Inputs []Input `yaml:"inputs" json:"inputs" validate:"required,min=1,dive"`

	// Filter is an optional CEL expression deciding which files are
	// admitted. Variables: path, name, ext, size.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	// Destination configures where the archive is written (default: a file
	// named after the job in the working directory).
	Destination *DestinationSpec `yaml:"destination,omitempty" json:"destination,omitempty"`
}

// ArchiveSpec configures the archive container and how it is driven.
type ArchiveSpec struct {
	// Format selects the archive format (default: tar.lz4).
	Format string `yaml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=tar.lz4 tar.zst tar.gz tar zip"`

	// BufferSize is the read buffer capacity in bytes (default: 512).
	BufferSize int `yaml:"bufferSize,omitempty" json:"bufferSize,omitempty" validate:"omitempty,min=1"`

	// Level is the compression level. Zero keeps the codec default.
	Level int `yaml:"level,omitempty" json:"level,omitempty" validate:"omitempty,min=0,max=22"`

	// Blocking writes the whole archive in one call instead of bounded
	// steps. Bounded steps allow cancellation between units of work.
	Blocking bool `yaml:"blocking,omitempty" json:"blocking,omitempty"`
}

// Input is one file or directory to archive.
type Input struct {
	// Path is the file or directory path. Supports ${VAR} expansion.
	Path string `yaml:"path" json:"path" validate:"required" template:""`

	// Recursive walks Path when it is a directory.
	Recursive bool `yaml:"recursive,omitempty" json:"recursive,omitempty"`
}

// DestinationSpec configures the archive destination (one of the fields
// should be set).
type DestinationSpec struct {
	File   *FileDestination   `yaml:"file,omitempty" json:"file,omitempty"`
	S3     *S3Destination     `yaml:"s3,omitempty" json:"s3,omitempty"`
	HTTP   *HTTPDestination   `yaml:"http,omitempty" json:"http,omitempty"`
	Stdout *StdoutDestination `yaml:"stdout,omitempty" json:"stdout,omitempty"`
}

// FileDestination writes the archive to a local path.
type FileDestination struct {
	// Path is the output base name; the format extension is appended.
	// Supports ${VAR} expansion.
	Path string `yaml:"path" json:"path" validate:"required" template:""`
}

// S3Destination streams the archive to S3-compatible object storage.
// Credentials come from the default AWS chain.
type S3Destination struct {
	Bucket string `yaml:"bucket" json:"bucket" validate:"required" template:""`

	// Key is the object base name; the format extension is appended.
	// Supports ${VAR} expansion.
	Key string `yaml:"key" json:"key" validate:"required" template:""`

	Region string `yaml:"region,omitempty" json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint for compatible services (R2,
	// MinIO, etc.).
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" template:""`

	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty" template:""`

	ForcePathStyle bool `yaml:"forcePathStyle,omitempty" json:"forcePathStyle,omitempty"`
}

// HTTPDestination uploads the archive with a single PUT request.
type HTTPDestination struct {
	// URL supports ${VAR} expansion; headers are always expanded.
	URL string `yaml:"url" json:"url" validate:"required,url" template:""`

	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Insecure skips TLS certificate verification.
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// StdoutDestination writes the raw archive bytes to stdout (no options
// currently).
type StdoutDestination struct{}
