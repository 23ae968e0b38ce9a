package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hokhau-ai/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrLLMUnavailable is returned when the remote model cannot serve a request,
// including when the circuit breaker is open.
var ErrLLMUnavailable = fmt.Errorf("llm unavailable")

// LLMService wraps the GigaChat client behind a circuit breaker. It is the
// last resort of the chat pipeline, consulted only when the knowledge store,
// the response cache and the rule-based replies all miss.
type LLMService struct {
	client  *gigago.Client
	model   *gigago.GenerativeModel
	breaker *gobreaker.CircuitBreaker
	cfg     *config.GigaChatConfig
	logger  *zap.Logger
}

func buildSystemInstruction() string {
	return `Bạn là trợ lý ảo của hệ thống quản lý hộ khẩu và nhân khẩu. Nhiệm vụ của bạn là trả lời các câu hỏi của cán bộ quản lý về nghiệp vụ hộ khẩu: đăng ký hộ khẩu, tách hộ, chuyển hộ, quản lý nhân khẩu, tạm trú, tạm vắng, thu phí và thống kê.

Quy tắc trả lời:
- Trả lời bằng tiếng Việt, ngắn gọn và chính xác.
- Chỉ trả lời các câu hỏi liên quan đến nghiệp vụ quản lý hộ khẩu, nhân khẩu và các chức năng của hệ thống.
- Nếu câu hỏi nằm ngoài phạm vi nghiệp vụ, lịch sự đề nghị người dùng liên hệ quản trị viên.
- Không bịa đặt số liệu hoặc quy định pháp luật.`
}

func NewLLMService(cfg *config.GigaChatConfig, logger *zap.Logger) (*LLMService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = buildSystemInstruction()
	model.Temperature = 0.3

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gigachat",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("LLM circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &LLMService{
		client:  client,
		model:   model,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Complete asks the remote model for a reply to the user message. The
// optional chat context is prepended so the model sees recent turns.
func (s *LLMService) Complete(ctx context.Context, message, chatContext string) (string, error) {
	prompt := message
	if chatContext != "" {
		prompt = fmt.Sprintf("Ngữ cảnh hội thoại trước đó:\n%s\n\nCâu hỏi hiện tại: %s", chatContext, message)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		messages := []gigago.Message{
			{Role: gigago.RoleUser, Content: prompt},
		}
		resp, err := s.model.Generate(cctx, messages)
		if err != nil {
			return nil, fmt.Errorf("failed to generate response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from LLM")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			s.logger.Warn("LLM request rejected by circuit breaker")
			return "", ErrLLMUnavailable
		}
		s.logger.Error("LLM request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	return result.(string), nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
