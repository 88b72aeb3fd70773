package middleware

import (
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

// MediaHeaders 为上传文件设置下载头：只有可解码的图片允许内联展示，其余一律作为附件下载
func MediaHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		if _, err := imaging.FormatFromFilename(c.Request.URL.Path); err != nil {
			name := path.Base(c.Request.URL.Path)
			c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
			c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
		}
		c.Next()
	}
}
