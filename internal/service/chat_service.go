package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"hokhau-ai/internal/kb"
	"hokhau-ai/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response source tags, persisted with every exchange so the learning
// pipeline can tell curated knowledge from raw model output.
const (
	SourceKnowledge = "kb"
	SourceCache     = "cache"
	SourceLocal     = "local"
	SourceLLM       = "gigachat"
)

// Responder abstracts the remote model so the chat pipeline can run without
// one configured.
type Responder interface {
	Complete(ctx context.Context, message, chatContext string) (string, error)
}

// EventSink receives a copy of every chat exchange for durable storage.
type EventSink interface {
	AppendEvent(ctx context.Context, event *models.ChatEvent) error
}

// ConversationWriter persists exchanges to the structured store.
type ConversationWriter interface {
	Insert(ctx context.Context, event *models.ChatEvent) error
}

// ResponseCache caches final responses keyed by message and context.
type ResponseCache interface {
	Get(ctx context.Context, message, chatContext string) (string, bool)
	Set(ctx context.Context, message, chatContext, response string)
}

var (
	punctRe    = regexp.MustCompile(`[!?.]`)
	greetingRe = regexp.MustCompile(`^(xin chào|chào|chào bạn|hello|hi)$`)
)

// ChatService runs the response pipeline: learned knowledge first, then the
// shared response cache, then rule-based replies for the core system topics,
// and the remote model last. Every exchange is persisted asynchronously to
// the structured store and the blob log.
type ChatService struct {
	matcher       *kb.Matcher
	responseCache ResponseCache
	llm           Responder
	conversations ConversationWriter
	chatLog       EventSink
	logger        *zap.Logger
}

func NewChatService(
	matcher *kb.Matcher,
	responseCache ResponseCache,
	llm Responder,
	conversations ConversationWriter,
	chatLog EventSink,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		matcher:       matcher,
		responseCache: responseCache,
		llm:           llm,
		conversations: conversations,
		chatLog:       chatLog,
		logger:        logger,
	}
}

// ProcessMessage resolves one user message to a reply and records the
// exchange. The returned source tag names the pipeline stage that produced
// the reply.
func (s *ChatService) ProcessMessage(ctx context.Context, message, chatContext string) (string, string) {
	if answer, ok := s.matcher.FindBestAnswer(ctx, message); ok {
		s.record(message, answer, chatContext, SourceKnowledge)
		return answer, SourceKnowledge
	}

	if s.responseCache != nil {
		if cached, ok := s.responseCache.Get(ctx, message, chatContext); ok {
			s.record(message, cached, chatContext, SourceCache)
			return cached, SourceCache
		}
	}

	if reply, ok := localReply(message); ok {
		s.record(message, reply, chatContext, SourceLocal)
		return reply, SourceLocal
	}

	if s.llm != nil {
		if reply, err := s.llm.Complete(ctx, message, chatContext); err == nil && reply != "" {
			if s.responseCache != nil {
				s.responseCache.Set(ctx, message, chatContext, reply)
			}
			s.record(message, reply, chatContext, SourceLLM)
			return reply, SourceLLM
		}
	}

	reply := "Cảm ơn bạn đã liên hệ! Tôi là trợ lý AI của hệ thống Quản lý Nhân khẩu. Bạn có thể hỏi tôi về bất kỳ tính năng nào của hệ thống."
	s.record(message, reply, chatContext, SourceLocal)
	return reply, SourceLocal
}

// record persists the exchange to both stores without blocking the request.
func (s *ChatService) record(message, response, chatContext, source string) {
	event := &models.ChatEvent{
		ID:        uuid.New(),
		Message:   sanitizeUTF8(message),
		Response:  sanitizeUTF8(response),
		Context:   sanitizeUTF8(chatContext),
		Source:    source,
		Timestamp: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.conversations != nil {
			if err := s.conversations.Insert(ctx, event); err != nil {
				s.logger.Warn("Failed to persist conversation", zap.Error(err))
			}
		}
		if s.chatLog != nil {
			if err := s.chatLog.AppendEvent(ctx, event); err != nil {
				s.logger.Warn("Failed to append chat log", zap.Error(err))
			}
		}
	}()
}

// localReply answers the handful of core system topics without touching the
// remote model. Keyword variants cover both accented and unaccented spelling.
func localReply(message string) (string, bool) {
	clean := punctRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(message)), "")

	if greetingRe.MatchString(clean) {
		return "Xin chào! Tôi là trợ lý AI của hệ thống Quản lý Nhân khẩu. Tôi có thể giúp bạn tìm hiểu về các tính năng của hệ thống.", true
	}

	if containsAny(clean, "hộ khẩu", "ho khau", "household") {
		return `Để quản lý hộ khẩu, bạn có thể:

1. **Xem danh sách hộ khẩu**: Vào trang "Quản lý Hộ khẩu" để xem tất cả hộ khẩu
2. **Tạo hộ khẩu mới**: Click nút "Thêm hộ khẩu" và điền thông tin
3. **Chỉnh sửa hộ khẩu**: Click icon "Sửa" trên từng hộ khẩu
4. **Xem chi tiết**: Click vào mã hộ khẩu để xem thông tin chi tiết

Mỗi hộ khẩu bao gồm: Mã hộ khẩu, Địa chỉ, Chủ hộ và các thành viên trong hộ.`, true
	}

	if containsAny(clean, "nhân khẩu", "nhan khau", "person", "thành viên") {
		return `Để quản lý nhân khẩu:

1. **Xem danh sách**: Vào "Quản lý Nhân khẩu" để xem tất cả nhân khẩu
2. **Thêm nhân khẩu**: Có thể thêm từ trang "Nhân khẩu" hoặc từ chi tiết hộ khẩu
3. **Tìm kiếm**: Sử dụng thanh tìm kiếm theo tên, CCCD, nghề nghiệp
4. **Lọc**: Lọc theo độ tuổi, giới tính, địa chỉ
5. **Xuất dữ liệu**: Export Excel hoặc PDF

Mỗi nhân khẩu cần thông tin: Họ tên, Ngày sinh, CCCD, Quê quán, Nghề nghiệp.`, true
	}

	if containsAny(clean, "thu phí", "khoản thu", "khoan thu", "payment", "fee") {
		return `Quản lý thu phí bao gồm:

1. **Khoản thu bắt buộc**: Phí vệ sinh, phí an ninh,...
2. **Khoản thu đóng góp**: Ủng hộ, từ thiện,...

Các chức năng:
- Tạo khoản thu mới
- Xem chi tiết khoản thu và danh sách đã nộp
- Xem thống kê: Số hộ đã nộp, Tổng số tiền
- Ghi nhận nộp tiền cho hộ khẩu`, true
	}

	if containsAny(clean, "thống kê", "thong ke", "dashboard", "statistics") {
		return `Bảng thống kê cung cấp:

1. **Tổng quan**: Số hộ khẩu, số nhân khẩu
2. **Phân bố độ tuổi**: Mầm non, Tiểu học, THCS, THPT, Lao động, Nghỉ hưu
3. **Biểu đồ**: Visualize dữ liệu độ tuổi

Vào trang "Dashboard" để xem tất cả thống kê.`, true
	}

	if containsAny(clean, "đăng nhập", "dang nhap", "login") {
		return `Để đăng nhập hệ thống:

1. Nhập Username (ví dụ: admin, ketoan)
2. Nhập Password (mật khẩu đã được cấp)
3. Click "Đăng nhập"

Có 2 loại tài khoản:
- **ADMIN**: Toàn quyền quản lý
- **ACCOUNTANT**: Quản lý khoản thu và thu phí`, true
	}

	if containsAny(clean, "giúp", "help", "hướng dẫn", "huong dan") {
		return `Tôi có thể giúp bạn với:

- Quản lý Hộ khẩu
- Quản lý Nhân khẩu
- Thu phí và Khoản thu
- Xem Thống kê
- Hướng dẫn Đăng nhập

Hãy hỏi tôi về bất kỳ chức năng nào!`, true
	}

	return "", false
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
