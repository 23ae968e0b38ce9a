package main

import (
	"context"
	"log"
	"time"

	"hokhau-ai/internal/models"
	"hokhau-ai/internal/repository"
	"hokhau-ai/pkg/config"
	"hokhau-ai/pkg/logger"
	"hokhau-ai/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		message TEXT NOT NULL,
		response TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations (created_at, id)`,
}

// seedConversations is a starter history so a fresh deployment answers the
// common questions before any real traffic accumulates.
var seedConversations = []struct {
	message  string
	response string
	source   string
}{
	{
		message:  "Làm sao để thêm hộ khẩu mới?",
		response: "Để thêm hộ khẩu mới, vào trang \"Quản lý Hộ khẩu\", click nút \"Thêm hộ khẩu\" và điền các thông tin: Mã hộ khẩu, Địa chỉ, Chủ hộ. Sau khi lưu, bạn có thể thêm các thành viên vào hộ.",
		source:   "feedback",
	},
	{
		message:  "Cách tách hộ khẩu như thế nào?",
		response: "Để tách hộ khẩu: mở chi tiết hộ khẩu hiện tại, chọn các nhân khẩu cần tách, click \"Tách hộ\" và nhập thông tin hộ khẩu mới (mã hộ, địa chỉ, chủ hộ). Hệ thống sẽ tự động chuyển các nhân khẩu đã chọn sang hộ mới.",
		source:   "feedback",
	},
	{
		message:  "Tìm nhân khẩu theo số CCCD ở đâu?",
		response: "Vào trang \"Quản lý Nhân khẩu\", nhập số CCCD vào thanh tìm kiếm ở đầu trang. Hệ thống hỗ trợ tìm theo tên, CCCD và nghề nghiệp.",
		source:   "chat",
	},
	{
		message:  "Khoản thu bắt buộc gồm những gì?",
		response: "Khoản thu bắt buộc gồm các loại phí cố định như phí vệ sinh, phí an ninh. Mức thu được tính theo số nhân khẩu trong hộ. Khoản thu đóng góp (ủng hộ, từ thiện) là tự nguyện và không bắt buộc mức tiền.",
		source:   "corrected",
	},
	{
		message:  "Cách ghi nhận hộ đã nộp tiền?",
		response: "Mở chi tiết khoản thu, tìm hộ khẩu trong danh sách, click \"Ghi nhận nộp tiền\" và nhập số tiền cùng ngày nộp. Trạng thái của hộ sẽ chuyển thành \"Đã nộp\".",
		source:   "chat",
	},
	{
		message:  "Đăng ký tạm trú cho người mới đến cần làm gì?",
		response: "Vào \"Quản lý Nhân khẩu\", chọn \"Đăng ký tạm trú\", điền thông tin người tạm trú: Họ tên, Ngày sinh, CCCD, Nơi thường trú, Thời hạn tạm trú và hộ khẩu tiếp nhận.",
		source:   "feedback",
	},
	{
		message:  "Báo tạm vắng cho nhân khẩu thế nào?",
		response: "Mở chi tiết nhân khẩu, chọn \"Báo tạm vắng\", nhập thời gian bắt đầu, thời gian kết thúc dự kiến và nơi đến. Nhân khẩu tạm vắng vẫn được giữ trong hộ khẩu nhưng được đánh dấu trạng thái tạm vắng.",
		source:   "chat",
	},
	{
		message:  "Xem thống kê phân bố độ tuổi ở đâu?",
		response: "Vào trang Dashboard, phần \"Phân bố độ tuổi\" hiển thị số nhân khẩu theo các nhóm: Mầm non, Tiểu học, THCS, THPT, Lao động, Nghỉ hưu kèm biểu đồ trực quan.",
		source:   "chat",
	},
	{
		message:  "Tài khoản kế toán có quyền gì?",
		response: "Tài khoản ACCOUNTANT được quản lý khoản thu và ghi nhận thu phí. Các chức năng quản lý hộ khẩu, nhân khẩu và tài khoản chỉ dành cho ADMIN.",
		source:   "corrected",
	},
	{
		message:  "Quên mật khẩu thì làm sao?",
		response: "Hệ thống không hỗ trợ tự đặt lại mật khẩu. Bạn hãy liên hệ quản trị viên (ADMIN) để được cấp lại mật khẩu mới.",
		source:   "feedback",
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Starting database seeding...")

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			appLogger.Fatal("Failed to create conversations schema", zap.Error(err))
		}
	}

	conversationRepo := repository.NewConversationRepository(db, appLogger)

	// Spread timestamps so keyset pagination and the learner's recency
	// window behave like real traffic.
	base := time.Now().UTC().Add(-time.Duration(len(seedConversations)) * time.Hour)
	inserted := 0
	for i, seed := range seedConversations {
		event := &models.ChatEvent{
			ID:        uuid.New(),
			Message:   seed.message,
			Response:  seed.response,
			Source:    seed.source,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if err := conversationRepo.Insert(ctx, event); err != nil {
			appLogger.Error("Failed to insert seed conversation",
				zap.String("message", seed.message),
				zap.Error(err),
			)
			continue
		}
		inserted++
	}

	appLogger.Info("Database seeding completed successfully!", zap.Int("inserted", inserted))
}
