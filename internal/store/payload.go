package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PayloadDir 临时 payload 文件的落盘目录。
// 文件归处理该任务的 worker 独占，成功与永久失败两条路都必须删除。
type PayloadDir struct {
	dir string
}

func NewPayloadDir(dir string) (*PayloadDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}
	return &PayloadDir{dir: dir}, nil
}

// Save 写入上传内容，边写边算 sha256。
// 返回落盘路径（payload_ref）与内容指纹。
func (p *PayloadDir) Save(r io.Reader) (ref, fingerprint string, err error) {
	path := filepath.Join(p.dir, uuid.NewString())
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create payload file: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write payload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("close payload file: %w", err)
	}

	return path, hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint 对既有 payload 文件算 sha256（入队时指纹未知、下载后补算）。
func (p *PayloadDir) Fingerprint(ref string) (string, error) {
	f, err := os.Open(ref)
	if err != nil {
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Remove 删除 payload 文件。文件不存在视为已清理。
func (p *PayloadDir) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove payload: %w", err)
	}
	return nil
}
