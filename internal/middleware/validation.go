package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// MaxPayloadSize 单次上传的最大 payload 大小（32MB）
	MaxPayloadSize = 32 * 1024 * 1024
)

var (
	// JobIDRegex 任务 ID 正则（UUID 形态：字母数字连字符，1-64字符）
	JobIDRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,64}$`)

	// FingerprintRegex 内容指纹正则（sha256 的十六进制表示）
	FingerprintRegex = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// PayloadSizeLimit 请求体大小限制中间件
func PayloadSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "请求体过大",
			})
			c.Abort()
			return
		}
		// ContentLength 可能为 -1（chunked），读取时再兜底
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ValidateJobID 验证任务 ID 格式
func ValidateJobID(jobID string) bool {
	return JobIDRegex.MatchString(jobID)
}

// ValidateFingerprint 验证内容指纹格式
func ValidateFingerprint(fingerprint string) bool {
	return FingerprintRegex.MatchString(fingerprint)
}

// SanitizeString 清理字符串（去除前后空格与控制字符）
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)

	var builder strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateJobIDParam Gin 中间件：验证路径参数中的 job_id
func ValidateJobIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "job_id 参数缺失",
			})
			c.Abort()
			return
		}

		if !ValidateJobID(jobID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "job_id 格式无效，必须是1-64个字母、数字或连字符",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware CORS 中间件（内部系统可选）
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
