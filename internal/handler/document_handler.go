package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ask-docs-go/internal/middleware"
	"ask-docs-go/internal/service"
	"ask-docs-go/pkg/log"
)

// DocumentHandler 结构体定义了文档上传与查询相关的处理器。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理 POST /api/v1/documents：接收 multipart 文件并触发异步摄取。
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	doc, err := h.documentService.Upload(c.Request.Context(), userID, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		log.Errorf("[DocumentHandler] 上传失败, filename: %s, err: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// List 处理 GET /api/v1/documents：列出用户自己的全部文档。
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	docs, err := h.documentService.ListByUser(userID)
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败, user_id: %s, err: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Status 处理 GET /api/v1/documents/:docId：查询单个文档的处理状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法获取用户信息"})
		return
	}

	doc, err := h.documentService.GetStatus(c.Param("docId"), userID)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
			return
		}
		log.Errorf("[DocumentHandler] 查询文档状态失败, err: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}
