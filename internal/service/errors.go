package service

import "errors"

// 服务层哨兵错误，HTTP 层据此映射状态码。
var (
	// ErrAddressNotFound 地址不存在
	ErrAddressNotFound = errors.New("email address not found")
	// ErrAddressExpired 地址已过期
	ErrAddressExpired = errors.New("email address expired")
	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")
	// ErrGenerateExhausted 随机地址多次碰撞，生成失败
	ErrGenerateExhausted = errors.New("failed to generate unique address")
)
