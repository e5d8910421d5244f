package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 成功訊息常數.
const (
	FileUploaded  = "File uploaded successfully"
	DataRetrieved = "Data retrieved successfully"
	DataCreated   = "Data created successfully"
	DataUpdated   = "Data updated successfully"
	DataDeleted   = "Data deleted successfully"
	MarkedRead    = "Marked as read"
	LoggedIn      = "Logged in successfully"
)

// 錯誤訊息常數.
const (
	InvalidParameter  = "Invalid parameter"
	InvalidFileFormat = "Invalid file format"
	FileTooLarge      = "File too large"
	ProcessingFailed  = "Processing failed"
	NotFound          = "Not found"
	RecordNotFound    = "Record not found"
)

// SuccessResponse 成功回應結構，客戶端一律從 data 取值.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
	Count   int         `json:"count,omitempty"`
}

// NewSuccessResponse 創建成功回應.
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Message: message,
		Data:    data,
	}
}

// NewSuccessResponseWithCount 創建帶計數的成功回應.
func NewSuccessResponseWithCount(message string, data interface{}, count int) *SuccessResponse {
	return &SuccessResponse{
		Message: message,
		Data:    data,
		Count:   count,
	}
}

// OK 回傳 200 與資料.
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(message, data))
}

// Created 回傳 201 與資料.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(DataCreated, data))
}
