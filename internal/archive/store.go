// Package archive persists end-of-day queue close summaries to S3 for
// reporting. Archival is best-effort from the engine's point of view;
// callers log failures and move on.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// s3API is the subset of the S3 client used by Store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes close summaries to S3 and keeps a monthly manifest of
// archived queues per clinic.
type Store struct {
	bucket   string
	s3Client s3API
	logger   *logging.Logger
}

var _ queue.Archiver = (*Store)(nil)

// NewStore creates an archive Store. If bucket is empty, all operations
// are no-ops, so deployments without an archive bucket run unchanged.
func NewStore(s3Client s3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger.Component("archive")}
}

// Enabled reports whether archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// summaryKey builds the object key for one queue's close summary.
func summaryKey(clinicID, serviceDate, queueID string) string {
	return fmt.Sprintf("queues/%s/%s/%s.json", clinicID, serviceDate, queueID)
}

// manifestKey builds the per-clinic monthly manifest key. The month comes
// from the close time, so late-night closes land in the month they happened.
func manifestKey(clinicID string, closedAt time.Time) string {
	return fmt.Sprintf("manifests/%s/%s.jsonl", clinicID, closedAt.UTC().Format("2006-01"))
}

// ArchiveCloseSummary writes the summary as JSON to S3 and appends it to
// the clinic's monthly manifest.
func (s *Store) ArchiveCloseSummary(ctx context.Context, summary *queue.CloseSummary) error {
	if !s.Enabled() {
		return nil
	}
	if summary == nil {
		return errors.New("archive: nil summary")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("archive: marshal summary: %w", err)
	}

	key := summaryKey(summary.ClinicID, summary.ServiceDate, summary.QueueID)
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived close summary",
		"queue_id", summary.QueueID,
		"clinic_id", summary.ClinicID,
		"s3_key", key,
		"tokens_issued", summary.TokensIssued,
	)

	entry := ManifestEntry{
		QueueID:      summary.QueueID,
		ClinicID:     summary.ClinicID,
		DoctorID:     summary.DoctorID,
		ServiceDate:  summary.ServiceDate,
		S3Key:        key,
		TokensIssued: summary.TokensIssued,
		Completed:    summary.StatusCounts[queue.TokenCompleted],
		NoShows:      summary.StatusCounts[queue.TokenNoShow],
		ClosedAt:     summary.ClosedAt.UTC().Format(time.RFC3339),
	}
	if err := s.appendManifest(ctx, summary.ClinicID, summary.ClosedAt, entry); err != nil {
		// The summary object is already durable; a manifest gap is recoverable
		// by listing the bucket.
		s.logger.Warn("failed to append archive manifest", "queue_id", summary.QueueID, "error", err)
	}
	return nil
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	QueueID      string `json:"queueId"`
	ClinicID     string `json:"clinicId"`
	DoctorID     string `json:"doctorId"`
	ServiceDate  string `json:"serviceDate"`
	S3Key        string `json:"s3Key"`
	TokensIssued int    `json:"tokensIssued"`
	Completed    int    `json:"completed"`
	NoShows      int    `json:"noShows"`
	ClosedAt     string `json:"closedAt"`
}

// appendManifest appends a JSONL line to the clinic's monthly manifest.
// S3 has no append, so this is a read-modify-write; close operations are
// serialized per queue and manifests are per clinic, which keeps the race
// window small enough for a reporting aid.
func (s *Store) appendManifest(ctx context.Context, clinicID string, closedAt time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	key := manifestKey(clinicID, closedAt)
	var existing []byte
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest %s: %w", key, err)
		}
	case isNoSuchKey(err):
		// First close of the month starts a fresh manifest.
	default:
		return fmt.Errorf("archive: get manifest %s: %w", key, err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(buf.Bytes()),
		ContentType:          aws.String("application/x-ndjson"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
