package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"hokhau-ai/internal/models"
	"hokhau-ai/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"
)

// chatLogLine is the wire format of one line in a daily chat-log object.
type chatLogLine struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatLogRepository reads and appends newline-delimited JSON chat logs in an
// OSS bucket, one object per day under a configurable prefix. It is the
// secondary conversation source: the bucket outlives database resets, so
// reloads can rebuild knowledge even after the structured store is wiped.
type ChatLogRepository struct {
	bucket       *oss.Bucket
	logPrefix    string
	fallbackDays int
	logger       *zap.Logger
}

func NewChatLogRepository(cfg *config.OSSConfig, logger *zap.Logger) (*ChatLogRepository, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open oss bucket %s: %w", cfg.Bucket, err)
	}

	return &ChatLogRepository{
		bucket:       bucket,
		logPrefix:    strings.TrimSuffix(cfg.LogPrefix, "/"),
		fallbackDays: cfg.FallbackDays,
		logger:       logger,
	}, nil
}

func (r *ChatLogRepository) Name() string {
	return "oss"
}

func (r *ChatLogRepository) objectKey(day time.Time) string {
	return fmt.Sprintf("%s/%s.ndjson", r.logPrefix, day.UTC().Format("2006-01-02"))
}

// FetchAll reads every log object under the prefix. When listing fails
// (restricted credentials without list permission are common), it falls back
// to probing the last fallbackDays daily keys directly.
func (r *ChatLogRepository) FetchAll(ctx context.Context) ([]models.ConversationRecord, error) {
	keys, err := r.listLogKeys(ctx)
	if err != nil {
		r.logger.Warn("Failed to list chat-log objects, falling back to date probing",
			zap.Error(err),
		)
		keys = r.recentDateKeys()
	}

	var out []models.ConversationRecord
	readErrors := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := r.readLogObject(key)
		if err != nil {
			// Probed date keys legitimately may not exist.
			if isNoSuchKey(err) {
				continue
			}
			readErrors++
			r.logger.Warn("Failed to read chat-log object",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		out = append(out, records...)
	}

	if len(out) == 0 && readErrors > 0 {
		return nil, fmt.Errorf("failed to read any of %d chat-log objects", len(keys))
	}
	return out, nil
}

// FetchRecent returns the same view as FetchAll. Daily objects are small
// enough that the learner filters in memory.
func (r *ChatLogRepository) FetchRecent(ctx context.Context) ([]models.ConversationRecord, error) {
	return r.FetchAll(ctx)
}

// AppendEvent appends one exchange to today's log object via
// read-modify-write. Concurrent writers may lose a line; the log is a
// best-effort mirror of the database, not the system of record.
func (r *ChatLogRepository) AppendEvent(ctx context.Context, event *models.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.objectKey(event.Timestamp)

	var existing []byte
	body, err := r.bucket.GetObject(key)
	if err == nil {
		existing, err = io.ReadAll(body)
		body.Close()
		if err != nil {
			return fmt.Errorf("failed to read chat-log object %s: %w", key, err)
		}
	} else if !isNoSuchKey(err) {
		return fmt.Errorf("failed to get chat-log object %s: %w", key, err)
	}

	line, err := json.Marshal(chatLogLine{
		Message:   event.Message,
		Response:  event.Response,
		Source:    event.Source,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat-log line: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	err = r.bucket.PutObject(key, bytes.NewReader(buf.Bytes()),
		oss.ContentType("application/x-ndjson"),
	)
	if err != nil {
		return fmt.Errorf("failed to put chat-log object %s: %w", key, err)
	}
	return nil
}

func (r *ChatLogRepository) listLogKeys(ctx context.Context) ([]string, error) {
	var keys []string
	marker := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := r.bucket.ListObjects(
			oss.Prefix(r.logPrefix+"/"),
			oss.Marker(marker),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", r.logPrefix, err)
		}
		for _, object := range result.Objects {
			if strings.HasSuffix(object.Key, ".ndjson") {
				keys = append(keys, object.Key)
			}
		}
		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}
	return keys, nil
}

// recentDateKeys builds candidate keys for the last fallbackDays days,
// today included.
func (r *ChatLogRepository) recentDateKeys() []string {
	now := time.Now().UTC()
	keys := make([]string, 0, r.fallbackDays)
	for i := 0; i < r.fallbackDays; i++ {
		keys = append(keys, r.objectKey(now.AddDate(0, 0, -i)))
	}
	return keys
}

func (r *ChatLogRepository) readLogObject(key string) ([]models.ConversationRecord, error) {
	body, err := r.bucket.GetObject(key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out []models.ConversationRecord
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line chatLogLine
		if err := json.Unmarshal(raw, &line); err != nil {
			r.logger.Debug("Skipping malformed chat-log line",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		out = append(out, models.ConversationRecord{
			Question:  line.Message,
			Answer:    line.Response,
			Source:    line.Source,
			Timestamp: line.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan chat-log object %s: %w", key, err)
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	var serviceErr oss.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code == "NoSuchKey"
	}
	return false
}
