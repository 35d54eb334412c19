package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/config"
	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/internal/validation"
	"github.com/temcen/reelrank/pkg/models"
)

// ErrUnknownJob is returned for a job name that is not a recompute trigger.
var ErrUnknownJob = errors.New("messaging: unknown job")

// JobHandler runs one score job.
type JobHandler func(ctx context.Context, job models.ScoreJob) error

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// JobBus carries score recompute triggers over Kafka, retrying failed runs
// with exponential backoff and parking exhausted ones on a dead-letter topic.
type JobBus struct {
	writer    messageWriter
	reader    messageReader
	dlqWriter messageWriter
	validator *validation.SchemaValidator
	logger    *logrus.Logger

	topic      string
	dlqTopic   string
	maxRetries int
	baseDelay  time.Duration
}

func NewJobBus(cfg *config.Config, validator *validation.SchemaValidator, logger *logrus.Logger) *JobBus {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.ScoreJobs,
		Balancer:     &kafka.Hash{}, // one partition per job name
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.ScoreJobs,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.ScoreJobsDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return newJobBus(writer, reader, dlqWriter, validator, logger,
		cfg.Kafka.Topics.ScoreJobs, cfg.Kafka.Topics.ScoreJobsDLQ,
		cfg.Kafka.MaxRetries, cfg.Kafka.RetryBaseDelay)
}

func newJobBus(writer messageWriter, reader messageReader, dlqWriter messageWriter,
	validator *validation.SchemaValidator, logger *logrus.Logger,
	topic, dlqTopic string, maxRetries int, baseDelay time.Duration) *JobBus {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &JobBus{
		writer:     writer,
		reader:     reader,
		dlqWriter:  dlqWriter,
		validator:  validator,
		logger:     logger,
		topic:      topic,
		dlqTopic:   dlqTopic,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Publish enqueues a recompute trigger. An empty dialects list targets every
// configured dialect.
func (jb *JobBus) Publish(ctx context.Context, name string, dialects []string) (models.ScoreJob, error) {
	if !models.KnownJob(name) {
		return models.ScoreJob{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	job := models.ScoreJob{
		JobID:       uuid.New(),
		Name:        name,
		Dialects:    dialects,
		RequestedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return models.ScoreJob{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(name),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(job.JobID.String())},
			{Key: "job", Value: []byte(name)},
			{Key: "timestamp", Value: []byte(job.RequestedAt.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := jb.writer.WriteMessages(writeCtx, message); err != nil {
		jb.logger.WithError(err).WithField("job", name).Error("Failed to publish score job")
		return models.ScoreJob{}, fmt.Errorf("failed to write job to Kafka: %w", err)
	}

	metrics.JobMessages.WithLabelValues(name, "published").Inc()
	jb.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"job":    name,
		"topic":  jb.topic,
	}).Info("Score job published")

	return job, nil
}

// Consume reads jobs until ctx is cancelled. A job that keeps failing after
// the configured retries, or a message that does not decode, is sent to the
// dead-letter topic and the consumer moves on.
func (jb *JobBus) Consume(ctx context.Context, handler JobHandler) error {
	for {
		message, err := jb.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			jb.logger.WithError(err).Error("Failed to read message from Kafka")
			continue
		}

		job, err := jb.decode(message.Value)
		if err != nil {
			jb.logger.WithError(err).Error("Rejected malformed score job")
			if dlqErr := jb.sendToDLQ(ctx, message.Value, "", err); dlqErr != nil {
				jb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			}
			continue
		}

		if err := jb.processWithRetry(ctx, job, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			jb.logger.WithError(err).WithFields(logrus.Fields{
				"job_id": job.JobID,
				"job":    job.Name,
			}).Error("Failed to process score job after retries")

			if dlqErr := jb.sendToDLQ(ctx, message.Value, job.Name, err); dlqErr != nil {
				jb.logger.WithError(dlqErr).Error("Failed to send message to DLQ")
			}
		}
	}
}

func (jb *JobBus) decode(payload []byte) (models.ScoreJob, error) {
	var job models.ScoreJob
	if jb.validator != nil {
		if err := jb.validator.ValidateScoreJob(payload).Err(); err != nil {
			return job, err
		}
	}
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if !models.KnownJob(job.Name) {
		return job, fmt.Errorf("%w: %q", ErrUnknownJob, job.Name)
	}
	return job, nil
}

func (jb *JobBus) processWithRetry(ctx context.Context, job models.ScoreJob, handler JobHandler) error {
	for attempt := 0; attempt <= jb.maxRetries; attempt++ {
		if attempt > 0 {
			delay := jb.baseDelay * time.Duration(1<<uint(attempt-1))
			jb.logger.WithFields(logrus.Fields{
				"job_id":  job.JobID,
				"attempt": attempt,
				"delay":   delay,
			}).Info("Retrying score job")
			metrics.JobMessages.WithLabelValues(job.Name, "retried").Inc()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		job.RetryCount = attempt
		err := handler(ctx, job)
		if err == nil {
			metrics.JobMessages.WithLabelValues(job.Name, "processed").Inc()
			jb.logger.WithFields(logrus.Fields{
				"job_id":  job.JobID,
				"job":     job.Name,
				"attempt": attempt,
			}).Info("Score job processed")
			return nil
		}

		jb.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":  job.JobID,
			"attempt": attempt,
		}).Warn("Score job failed")

		if attempt == jb.maxRetries {
			return fmt.Errorf("max retries exceeded: %w", err)
		}
	}

	return fmt.Errorf("unexpected retry loop exit")
}

type deadLetter struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	DLQTimestamp    time.Time       `json:"dlq_timestamp"`
}

func (jb *JobBus) sendToDLQ(ctx context.Context, original []byte, jobName string, cause error) error {
	letter := deadLetter{
		Error:        cause.Error(),
		DLQTimestamp: time.Now().UTC(),
	}
	if json.Valid(original) {
		letter.OriginalMessage = original
	} else {
		quoted, _ := json.Marshal(string(original))
		letter.OriginalMessage = quoted
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(jobName),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(jb.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := jb.dlqWriter.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	if jobName == "" {
		jobName = "unknown"
	}
	metrics.JobMessages.WithLabelValues(jobName, "dead_lettered").Inc()
	jb.logger.WithFields(logrus.Fields{
		"job":   jobName,
		"topic": jb.dlqTopic,
		"error": cause.Error(),
	}).Warn("Score job sent to DLQ")

	return nil
}

func (jb *JobBus) Close() error {
	var errs []error

	if err := jb.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := jb.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := jb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	return errors.Join(errs...)
}
