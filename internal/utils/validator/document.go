// internal/utils/validator/document.go
package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

// File is what the validator needs from an uploaded file.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// DocumentValidator 招股书上传验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64               // 最大文件大小（字节）
	AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
	MaxPageCount int                 // PDF最大页数
}

// ValidationResult 验证结果
type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
	PageCount int    `json:"pageCount,omitempty"`
}

// DefaultConfig accepts PDF and the HTML/text renditions EDGAR serves.
func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 50 * 1024 * 1024, // 50MB
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".htm":  {"text/html", "text/plain"},
			".html": {"text/html", "text/plain"},
			".txt":  {"text/plain"},
		},
		MaxPageCount: 2000,
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{
		logger: log,
		config: config,
	}
}

// ValidateFile 验证单个文件
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return v.Validate(file.Filename, file.Size, f)
}

// Validate checks an already opened file and leaves it rewound.
func (v *DocumentValidator) Validate(filename string, size int64, f File) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		Errors:  make([]ValidationError, 0),
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      size,
			Extension: strings.ToLower(filepath.Ext(filename)),
		},
	}

	// 计算文件哈希
	hash, err := calculateHash(f)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hash

	// 基本验证
	if errs := v.performBasicValidation(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		// 扩展名或大小不合法时不再读取内容
		return result, rewind(f)
	}

	// MIME类型验证
	mimeType, err := detectMimeType(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = mimeType

	if errs := v.validateMimeType(result.FileInfo); len(errs) > 0 {
		result.IsValid = false
		result.Errors = append(result.Errors, errs...)
		return result, rewind(f)
	}

	if result.FileInfo.Extension == ".pdf" {
		pages, errs := v.validatePDF(f, size)
		result.FileInfo.PageCount = pages
		if len(errs) > 0 {
			result.IsValid = false
			result.Errors = append(result.Errors, errs...)
		}
	}

	if !result.IsValid {
		v.logger.Warn("Upload rejected",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}

	return result, rewind(f)
}

// Summary joins the validation errors into one line.
func (r *ValidationResult) Summary() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// 基本验证
func (v *DocumentValidator) performBasicValidation(fileInfo FileInfo) []ValidationError {
	var errors []ValidationError

	if fileInfo.Size <= 0 {
		errors = append(errors, ValidationError{
			Code:    "FILE_EMPTY",
			Message: "File is empty",
			Field:   "size",
		})
	}

	// 检查文件大小
	if fileInfo.Size > v.config.MaxFileSize {
		errors = append(errors, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	// 检查文件扩展名
	if _, ok := v.config.AllowedTypes[fileInfo.Extension]; !ok {
		errors = append(errors, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %q is not allowed", fileInfo.Extension),
			Field:   "extension",
		})
	}

	return errors
}

// MIME类型验证
func (v *DocumentValidator) validateMimeType(fileInfo FileInfo) []ValidationError {
	mediaType, _, err := mime.ParseMediaType(fileInfo.MimeType)
	if err != nil {
		mediaType = fileInfo.MimeType
	}

	for _, allowed := range v.config.AllowedTypes[fileInfo.Extension] {
		if allowed == mediaType {
			return nil
		}
	}

	return []ValidationError{{
		Code:    "INVALID_MIME_TYPE",
		Message: fmt.Sprintf("Invalid MIME type %s for extension %s", mediaType, fileInfo.Extension),
		Field:   "mimeType",
	}}
}

// PDF特定验证
func (v *DocumentValidator) validatePDF(f File, size int64) (int, []ValidationError) {
	r, err := pdf.NewReader(f, size)
	if err != nil {
		return 0, []ValidationError{{
			Code:    "PDF_UNREADABLE",
			Message: fmt.Sprintf("PDF could not be parsed: %v", err),
			Field:   "content",
		}}
	}

	pages := r.NumPage()
	if pages <= 0 {
		return 0, []ValidationError{{
			Code:    "PDF_NO_PAGES",
			Message: "PDF has no pages",
			Field:   "content",
		}}
	}
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		return pages, []ValidationError{{
			Code:    "PDF_TOO_MANY_PAGES",
			Message: fmt.Sprintf("PDF has %d pages, maximum is %d", pages, v.config.MaxPageCount),
			Field:   "content",
		}}
	}
	return pages, nil
}

// 检测MIME类型
func detectMimeType(f File) (string, error) {
	// 读取文件头部
	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	// 重置文件指针
	if err := rewind(f); err != nil {
		return "", err
	}

	// DetectContentType misses PDFs with leading whitespace or a BOM.
	if bytes.HasPrefix(bytes.TrimLeft(buffer[:n], "\xef\xbb\xbf \t\r\n"), []byte("%PDF-")) {
		return "application/pdf", nil
	}
	return http.DetectContentType(buffer[:n]), nil
}

// 计算文件哈希
func calculateHash(f File) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	if err := rewind(f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func rewind(f io.Seeker) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file pointer: %w", err)
	}
	return nil
}
