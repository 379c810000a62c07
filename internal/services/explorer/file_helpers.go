package explorer

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
)

const (
	maxFileNameLength = 255
	recentDays        = 7
)

// 列表按上传时间过滤的可选区间
var dateRangeDays = map[string]int{
	"7days":  7,
	"30days": 30,
	"90days": 90,
}

// cleanFileName 只保留最后一段路径, 拒绝空名和控制字符
func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: 文件名不能为空", xerr.ErrInvalidParams)
	}
	if !utf8.ValidString(name) || len(name) > maxFileNameLength {
		return "", fmt.Errorf("%w: 文件名不合法", xerr.ErrInvalidParams)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: 文件名包含控制字符", xerr.ErrInvalidParams)
		}
	}
	return name, nil
}

// detectMimeType 优先使用客户端声明的类型, 其次扩展名, 最后嗅探内容
func detectMimeType(declared, fileName string, content []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	sniffed := http.DetectContentType(content)
	if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil {
		return mediaType
	}
	return "application/octet-stream"
}

func objectName(ownerID, fileID string) string {
	return fmt.Sprintf("files/%s/%s", ownerID, fileID)
}
