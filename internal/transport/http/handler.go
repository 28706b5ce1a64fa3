package httptransport

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
	"flashmail/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	addresses *service.AddressService
	messages  *service.MessageService
	logger    *zap.Logger
}

// NewHandler 创建处理器。
func NewHandler(addresses *service.AddressService, messages *service.MessageService, logger *zap.Logger) *Handler {
	return &Handler{
		addresses: addresses,
		messages:  messages,
		logger:    logger,
	}
}

// Root 欢迎页。
func (h *Handler) Root(c *gin.Context) {
	OKMessage(c, "Welcome to Temporary Email Service API")
}

// CreateEmail 创建临时邮箱地址。
//
// expiration_hours 查询参数可选，缺省 24 小时。
func (h *Handler) CreateEmail(c *gin.Context) {
	ttlHours := 0
	if raw := c.Query("expiration_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			BadRequest(c, "expiration_hours must be a positive integer")
			return
		}
		ttlHours = parsed
	}

	addr, err := h.addresses.Create(c.Request.Context(), ttlHours)
	if err != nil {
		h.logger.Error("创建地址失败", zap.Error(err))
		InternalError(c)
		return
	}

	OK(c, addr)
}

// GetMessages 列出某地址的全部消息。
func (h *Handler) GetMessages(c *gin.Context) {
	address := c.Param("address")

	msgs, err := h.messages.List(c.Request.Context(), address)
	switch {
	case err == nil:
		if msgs == nil {
			msgs = []*domain.Message{}
		}
		OK(c, msgs)
	case errors.Is(err, service.ErrAddressNotFound):
		NotFound(c, "Email address not found")
	case errors.Is(err, service.ErrAddressExpired):
		BadRequest(c, "Email address has expired")
	default:
		h.logger.Error("查询消息列表失败", zap.String("address", address), zap.Error(err))
		InternalError(c)
	}
}

// GetMessage 按 ID 读取单条消息。
func (h *Handler) GetMessage(c *gin.Context) {
	address := c.Param("address")
	messageID := c.Param("id")

	msg, err := h.messages.Get(c.Request.Context(), address, messageID)
	switch {
	case err == nil:
		OK(c, msg)
	case errors.Is(err, service.ErrAddressNotFound), errors.Is(err, service.ErrMessageNotFound):
		NotFound(c, "Message not found")
	default:
		h.logger.Error("查询消息失败",
			zap.String("address", address),
			zap.String("message_id", messageID),
			zap.Error(err))
		InternalError(c)
	}
}

// DeleteEmail 删除地址及其全部消息。
func (h *Handler) DeleteEmail(c *gin.Context) {
	address := c.Param("address")

	err := h.addresses.Delete(c.Request.Context(), address)
	switch {
	case err == nil:
		OKMessage(c, "Email address and messages deleted successfully")
	case errors.Is(err, service.ErrAddressNotFound):
		NotFound(c, "Email address not found")
	default:
		h.logger.Error("删除地址失败", zap.String("address", address), zap.Error(err))
		InternalError(c)
	}
}

// UpgradePremium 升级高级版，重置有效期。
//
// email_address 通过查询参数传入。
func (h *Handler) UpgradePremium(c *gin.Context) {
	address := c.Query("email_address")
	if address == "" {
		BadRequest(c, "email_address query parameter is required")
		return
	}

	_, err := h.addresses.Upgrade(c.Request.Context(), address)
	switch {
	case err == nil:
		OKMessage(c, "Email address upgraded to premium successfully")
	case errors.Is(err, service.ErrAddressNotFound):
		NotFound(c, "Email address not found")
	default:
		h.logger.Error("升级失败", zap.String("address", address), zap.Error(err))
		InternalError(c)
	}
}
