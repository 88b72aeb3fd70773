package service

import "io"

// Upload 上传文件（由 handler 打开并负责关闭）
type Upload struct {
	Filename string
	Reader   io.Reader
}
