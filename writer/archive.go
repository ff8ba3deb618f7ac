// Package writer mirrors persisted funding sequences into long-term
// storage: one parquet object per crawl batch plus a JSON manifest of what
// the run archived.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	parquetwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// ArchiveRecord is the parquet row layout of an archived funding sequence.
type ArchiveRecord struct {
	Exchange       string  `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pair           string  `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	RawPair        string  `parquet:"name=raw_pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRate    float64 `parquet:"name=funding_rate, type=DOUBLE"`
	FundingTime    int64   `parquet:"name=funding_time, type=INT64"`
	FundingTimeStr string  `parquet:"name=funding_time_str, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFile implements the ParquetFile interface over a byte buffer so
// parquet output is built in memory and uploaded in one piece.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (mf *memoryFile) Create(name string) (source.ParquetFile, error) {
	return mf, nil
}

func (mf *memoryFile) Open(name string) (source.ParquetFile, error) {
	return mf, nil
}

func (mf *memoryFile) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; the parquet writer never seeks backwards here.
	return int64(mf.buffer.Len()), nil
}

func (mf *memoryFile) Read(b []byte) (int, error) {
	return mf.buffer.Read(b)
}

func (mf *memoryFile) Write(b []byte) (int, error) {
	return mf.buffer.Write(b)
}

func (mf *memoryFile) Close() error {
	return nil
}

func (mf *memoryFile) Bytes() []byte {
	return mf.buffer.Bytes()
}

// Archiver uploads funding batches as partitioned parquet objects and keeps
// a per-run manifest alongside them. Archiving is best effort: the JSON
// checkpoint remains the source of truth.
type Archiver struct {
	s3Client    *s3.Client
	bucket      string
	prefix      string
	compression string
	version     string
	runID       string

	mu       sync.Mutex
	manifest *Manifest

	log *logger.Log
}

func NewArchiver(ctx context.Context, cfg *appconfig.Config) (*Archiver, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	runID := uuid.NewString()
	a := &Archiver{
		s3Client:    s3Client,
		bucket:      cfg.Storage.Archive.Bucket,
		prefix:      strings.Trim(cfg.Storage.Archive.Prefix, "/"),
		compression: cfg.Storage.Archive.Compression,
		version:     cfg.Fundingflow.Version,
		runID:       runID,
		manifest:    NewManifest(runID),
		log:         log,
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket": a.bucket,
		"prefix": a.prefix,
		"run_id": runID,
	}).Info("archiver initialized")
	return a, nil
}

// Archive writes records as one parquet object and refreshes the run
// manifest. Empty batches are skipped.
func (a *Archiver) Archive(ctx context.Context, market models.Market, records []models.FundingRecord) error {
	if len(records) == 0 {
		return nil
	}

	data, err := a.parquetBytes(records)
	if err != nil {
		return err
	}

	key := a.objectKey(market, time.Now().UTC())
	if err := a.upload(ctx, key, data, "application/octet-stream"); err != nil {
		return err
	}

	a.mu.Lock()
	a.manifest.Add(ManifestEntry{
		Key:        key,
		Exchange:   string(market.Exchange),
		Pair:       market.Pair,
		Records:    int64(len(records)),
		Bytes:      int64(len(data)),
		ArchivedAt: time.Now().UTC(),
	})
	manifestData, err := a.manifest.Marshal()
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if err := a.upload(ctx, a.manifestKey(), manifestData, "application/json"); err != nil {
		return err
	}

	a.log.WithComponent("archiver").WithMarket(string(market.Exchange), market.Pair).WithFields(logger.Fields{
		"key":     key,
		"records": len(records),
		"bytes":   len(data),
	}).Info("batch archived")
	a.log.LogMetric("archiver", "records_archived", int64(len(records)), "counter", logger.Fields{
		"exchange": string(market.Exchange),
	})
	return nil
}

func (a *Archiver) parquetBytes(records []models.FundingRecord) ([]byte, error) {
	mf := newMemoryFile()
	pw, err := parquetwriter.NewParquetWriter(mf, new(ArchiveRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range records {
		row := ArchiveRecord{
			Exchange:       string(r.Exchange),
			Pair:           r.Pair,
			RawPair:        r.RawPair,
			FundingRate:    r.FundingRate,
			FundingTime:    r.FundingTime,
			FundingTimeStr: r.FundingTimeStr,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return mf.Bytes(), nil
}

// objectKey partitions the archive by exchange and pair, hive style, with a
// unique batch file name per upload.
func (a *Archiver) objectKey(market models.Market, now time.Time) string {
	parts := []string{}
	if a.prefix != "" {
		parts = append(parts, a.prefix)
	}
	parts = append(parts,
		fmt.Sprintf("exchange=%s", market.Exchange),
		fmt.Sprintf("pair=%s", strings.ReplaceAll(market.Pair, "/", "-")),
		fmt.Sprintf("funding_%s_%s.parquet", now.Format("20060102150405"), a.runID[:8]),
	)
	return strings.Join(parts, "/")
}

func (a *Archiver) manifestKey() string {
	if a.prefix != "" {
		return fmt.Sprintf("%s/_manifests/run-%s.json", a.prefix, a.runID)
	}
	return fmt.Sprintf("_manifests/run-%s.json", a.runID)
}

func (a *Archiver) upload(ctx context.Context, key string, data []byte, contentType string) error {
	// Uploads finish even when the run is being cancelled.
	ctx = context.WithoutCancel(ctx)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"compression":         a.compression,
			"fundingflow-version": a.version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.bucket, err)
	}
	return nil
}
