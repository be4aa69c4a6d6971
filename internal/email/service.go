package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"spinwish/internal/config"
	"spinwish/internal/logger"
	"spinwish/internal/metrics"
	"spinwish/internal/payment"
)

const (
	queueKey       = "emails"
	failedQueueKey = "emails:failed"
	maxTries       = 3
)

const TypeAnomalyAlert = "anomaly_alert"

type EmailJob struct {
	Type    string    `json:"type"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues outgoing mail on a Redis list and delivers it over SMTP
// from a single worker loop.
type Service struct {
	redis      *redis.Client
	from       string
	fromName   string
	smtpHost   string
	smtpPort   string
	smtpUser   string
	smtpPass   string
	opsEmail   string
	retryDelay time.Duration
	send       func(EmailJob) error
}

func New(cfg *config.Config) *Service {
	return newService(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg)
}

func newService(rdb *redis.Client, cfg *config.Config) *Service {
	s := &Service{
		redis:      rdb,
		from:       cfg.EmailFrom,
		fromName:   cfg.EmailFromName,
		smtpHost:   cfg.SMTPHost,
		smtpPort:   cfg.SMTPPort,
		smtpUser:   cfg.SMTPUser,
		smtpPass:   cfg.SMTPPass,
		opsEmail:   cfg.OpsEmail,
		retryDelay: 5 * time.Second,
	}
	s.send = s.sendNow
	return s
}

func (s *Service) Send(ctx context.Context, emailType, to, name, subject, body string) error {
	job := EmailJob{
		Type:    emailType,
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}
	if err := s.enqueue(ctx, job); err != nil {
		logger.Error("queue email", "to", to, "type", emailType, "error", err)
		metrics.RecordEmail(emailType, "queue_failed")
		return err
	}

	metrics.RecordEmail(emailType, "queued")
	logger.Info("email queued", "to", to, "type", emailType, "subject", subject)
	return nil
}

func (s *Service) enqueue(ctx context.Context, job EmailJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}
	return s.redis.LPush(ctx, queueKey, data).Err()
}

// SendAnomalyAlert tells operators about money that was captured but could
// not be applied. Without OPS_EMAIL the alert is only logged.
func (s *Service) SendAnomalyAlert(ctx context.Context, rec *payment.Record) error {
	reason := "unknown"
	if rec.AnomalyReason != nil {
		reason = *rec.AnomalyReason
	}
	if s.opsEmail == "" {
		logger.Warn("anomaly alert not mailed, OPS_EMAIL unset", "correlation_id", rec.CorrelationID, "reason", reason)
		return nil
	}

	requestID := "-"
	if rec.RequestID != nil {
		requestID = *rec.RequestID
	}
	subject := fmt.Sprintf("[SpinWish] Payment anomaly: %s", reason)
	body := fmt.Sprintf(`A payment was captured but could not be applied.

Reason:      %s
Receipt:     %s
Checkout ID: %s
Amount:      KES %s
Payer:       %s
Type:        %s
Session:     %s
Request:     %s
Performer:   %s (%s)
Paid at:     %s

Review the payment and refund or credit it manually.
`,
		reason,
		rec.ReceiptNumber,
		rec.CorrelationID,
		rec.Amount.StringFixed(2),
		rec.PayerPhone,
		rec.PaymentType,
		rec.SessionID,
		requestID,
		rec.PerformerName,
		rec.PerformerID,
		rec.TransactionTime.Format(time.RFC3339),
	)

	return s.Send(ctx, TypeAnomalyAlert, s.opsEmail, "SpinWish Ops", subject, body)
}

// Start runs the delivery loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad email job", "error", err)
		return
	}

	job.Tries++
	if err := s.send(job); err != nil {
		logger.Error("send email", "to", job.To, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			s.requeue(ctx, job)
			return
		}
		metrics.RecordEmail(job.Type, "failed")
		s.saveFailed(ctx, job, err)
		return
	}

	metrics.RecordEmail(job.Type, "sent")
	logger.Info("email sent", "to", job.To, "type", job.Type)
}

func (s *Service) requeue(ctx context.Context, job EmailJob) {
	select {
	case <-ctx.Done():
	case <-time.After(s.retryDelay):
	}
	// Requeue even on shutdown so the job survives a restart.
	if err := s.enqueue(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("requeue email", "to", job.To, "error", err)
	}
}

func (s *Service) sendNow(job EmailJob) error {
	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return smtp.SendMail(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(ctx context.Context, job EmailJob, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	if pushErr := s.redis.LPush(context.WithoutCancel(ctx), failedQueueKey, data).Err(); pushErr != nil {
		logger.Error("store failed email", "to", job.To, "error", pushErr)
		return
	}
	logger.Error("email moved to failed queue", "to", job.To, "tries", job.Tries)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

var _ payment.Alerter = (*Service)(nil)
