package extension

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/journal"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/loadout"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/reliability"
)

// S3Config contains S3-specific configuration
type S3Config struct {
	Bucket string
	Region string

	// Prefix is the key prefix for objects
	Prefix string

	// StorageClass is the S3 storage class (STANDARD, GLACIER, etc.)
	StorageClass string

	// ServerSideEncryption specifies encryption (AES256, aws:kms)
	ServerSideEncryption string

	// ACL is the canned ACL (private, public-read, etc.)
	ACL string

	// Endpoint for S3-compatible services (e.g., MinIO)
	Endpoint     string
	UsePathStyle bool

	Compression CompressionType

	Retry   reliability.RetryConfig
	Breaker reliability.CircuitBreakerConfig
}

// DefaultS3Config returns default S3 configuration
func DefaultS3Config() S3Config {
	return S3Config{
		Region:       "us-east-1",
		Prefix:       "loadouts",
		StorageClass: "STANDARD",
		ACL:          "private",
		Compression:  CompressionNone,
		Retry:        reliability.RetryConfig{MaxRetries: 3, Jitter: true},
		Breaker:      reliability.CircuitBreakerConfig{Timeout: time.Minute},
	}
}

// ObjectPutter is the part of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// LoadoutArchive uploads a snapshot of the commander's ship every time the
// game reports a new loadout for a ship the commander owns.
type LoadoutArchive struct {
	config     S3Config
	client     ObjectPutter
	compressor Compressor
	guard      *reliability.Guard
	logger     *logging.Logger
}

// NewLoadoutArchive loads AWS credentials the default way and creates the
// client.
func NewLoadoutArchive(ctx context.Context, s3Config S3Config, logger *logging.Logger, collector *metrics.Collector) (*LoadoutArchive, error) {
	if s3Config.Region == "" {
		return nil, fmt.Errorf("no region specified")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s3Config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if s3Config.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
			o.UsePathStyle = s3Config.UsePathStyle
		})
	}

	return NewLoadoutArchiveWithClient(s3Config, s3.NewFromConfig(cfg, opts...), logger, collector)
}

// NewLoadoutArchiveWithClient uses an existing client.
func NewLoadoutArchiveWithClient(s3Config S3Config, client ObjectPutter, logger *logging.Logger, collector *metrics.Collector) (*LoadoutArchive, error) {
	if s3Config.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}

	compressor, err := GetCompressor(s3Config.Compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}

	breaker := s3Config.Breaker
	breaker.Name = "s3"
	breaker.Metrics = collector

	return &LoadoutArchive{
		config:     s3Config,
		client:     client,
		compressor: compressor,
		guard:      reliability.NewGuard(breaker, s3Config.Retry),
		logger:     logger.WithComponent("s3"),
	}, nil
}

// Name returns the extension name
func (a *LoadoutArchive) Name() string { return "s3" }

// JournalEntry uploads the ship on Loadout events. Crew members see other
// commanders' ships, so those are skipped.
func (a *LoadoutArchive) JournalEntry(ctx context.Context, n Notification) string {
	if n.Event == nil || n.Event.Kind != journal.KindLoadout || n.State == nil || n.State.Captain != "" {
		return ""
	}

	ship := loadout.Ship(n.State, true, n.Event.Timestamp)
	if ship == nil {
		return ""
	}

	data, err := ship.MarshalJSON()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to encode loadout")
		return ""
	}
	data, err = a.compressor.Compress(data)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to compress loadout")
		return ""
	}

	key := a.Key(n.Commander, n.State.ShipName, n.State.ShipType, n.Event.Timestamp)
	err = a.guard.Do(ctx, func(ctx context.Context) error {
		return a.upload(ctx, key, data)
	})
	if err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("Failed to archive loadout")
		return a.guard.Status(err, "S3: loadout not archived")
	}

	a.logger.Info().Str("bucket", a.config.Bucket).Str("key", key).Int("bytes", len(data)).Msg("Archived loadout")
	return ""
}

// Key returns <prefix>/<commander>/<ship>/<timestamp>.json plus the
// compression extension.
func (a *LoadoutArchive) Key(commander, shipName, shipType string, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	cmdr := strings.NewReplacer("/", "_", "\\", "_").Replace(commander)
	if cmdr == "" {
		cmdr = "unknown"
	}
	name := ts.UTC().Format("2006-01-02T15.04.05") + ".json" + a.compressor.Extension()
	return path.Join(a.config.Prefix, cmdr, loadout.ShipFileName(shipName, shipType), name)
}

// upload uploads data to S3
func (a *LoadoutArchive) upload(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}

	if a.config.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(a.config.StorageClass)
	}
	if a.config.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(a.config.ACL)
	}
	if a.config.ServerSideEncryption != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryption(a.config.ServerSideEncryption)
	}
	if a.config.Compression != CompressionNone && a.config.Compression != "" {
		input.ContentEncoding = aws.String(string(a.config.Compression))
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
