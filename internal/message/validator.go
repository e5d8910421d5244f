package message

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"udg-chat/internal/constants"
)

// ErrEmptyContent 訊息內容為空.
var ErrEmptyContent = errors.New("content cannot be empty")

// ValidateContent 驗證訊息內容.
func ValidateContent(content string, maxLength int) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	if maxLength <= 0 {
		maxLength = constants.DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(content) > maxLength {
		return fmt.Errorf("訊息內容超過最大長度限制 (%d 字符)", maxLength)
	}

	// 防止 NULL 字符注入
	if strings.Contains(content, "\x00") {
		return errors.New("訊息內容包含非法字符")
	}

	if !utf8.ValidString(content) {
		return errors.New("訊息內容不是有效的 UTF-8")
	}

	return nil
}

// ValidateFileName 驗證附件檔名.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("file name cannot be empty")
	}
	if len(name) > constants.MaxFileNameLength {
		return errors.New("file name too long")
	}
	if strings.ContainsAny(name, "\x00/\\") || name != filepath.Base(name) {
		return errors.New("file name contains illegal characters")
	}
	return nil
}

// IsValidType 檢查訊息類型是否有效.
func IsValidType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// TypeForContentType 依 MIME 類型決定附件訊息類型.
func TypeForContentType(contentType string) MessageType {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return MessageTypeImage
	}
	return MessageTypeFile
}

// ValidateSendRequest 驗證發送請求.
func ValidateSendRequest(req *SendRequest, maxLength int) error {
	if req.MessageType == "" {
		req.MessageType = MessageTypeText
	}
	if !IsValidType(req.MessageType) {
		return errors.New("invalid message type")
	}

	if req.MessageType == MessageTypeText {
		return ValidateContent(req.Content, maxLength)
	}

	if strings.TrimSpace(req.FileURL) == "" {
		return errors.New("file_url is required for attachments")
	}
	if err := ValidateFileName(req.FileName); err != nil {
		return err
	}
	if req.Content != "" {
		return ValidateContent(req.Content, maxLength)
	}
	return nil
}
