package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"gorm.io/gorm"
)

type FileRepository interface {
	WithTx(tx *gorm.DB) FileRepository
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	ListByOwner(ctx context.Context, ownerID string, q FileListQuery) ([]models.File, error)
	Delete(ctx context.Context, id string) error
	SumSizeByOwner(ctx context.Context, ownerID string) (uint64, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

// 文件类型分类
const (
	FileTypeDocument = "document"
	FileTypeImage    = "image"
	FileTypeOther    = "other"
)

// 允许排序的字段, key 为对外名称
var fileSortColumns = map[string]string{
	"name":        "file_name",
	"size":        "size",
	"uploaded_at": "created_at",
	"type":        "mime_type",
}

// FileListQuery 文件列表的过滤与排序, 零值返回全部文件并按上传时间倒序
type FileListQuery struct {
	Search string     // 文件名或 MIME 类型, 不区分大小写
	Since  *time.Time // 上传时间下限
	Type   string     // document, image, other, 其余值不过滤
	SortBy string     // name, size, uploaded_at, type
	Asc    bool
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) WithTx(tx *gorm.DB) FileRepository {
	return &fileRepository{db: tx}
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("创建文件记录失败: %w", err)
	}
	return nil
}

// 根据ID查找文件, 不存在返回 nil, nil
func (r *fileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	var file models.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询文件失败: %w", err)
	}
	return &file, nil
}

func (r *fileRepository) ListByOwner(ctx context.Context, ownerID string, q FileListQuery) ([]models.File, error) {
	db := r.db.WithContext(ctx).Where("user_id = ?", ownerID)

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		db = db.Where("(LOWER(file_name) LIKE ? ESCAPE '!' OR LOWER(mime_type) LIKE ? ESCAPE '!')", pattern, pattern)
	}
	if q.Since != nil {
		db = db.Where("created_at >= ?", q.Since.UTC())
	}

	document := "(LOWER(mime_type) LIKE '%pdf%' OR LOWER(mime_type) LIKE '%document%' OR LOWER(mime_type) LIKE '%text%')"
	image := "LOWER(mime_type) LIKE 'image/%'"
	switch q.Type {
	case FileTypeDocument:
		db = db.Where(document)
	case FileTypeImage:
		db = db.Where(image)
	case FileTypeOther:
		db = db.Where("(NOT " + document + " AND NOT (" + image + "))")
	}

	column, ok := fileSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := " DESC"
	if q.Asc {
		direction = " ASC"
	}

	var files []models.File
	if err := db.Order(column + direction).Order("id").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("查询文件列表失败: %w", err)
	}
	return files, nil
}

// escapeLike 转义 LIKE 通配符, 配合 ESCAPE '!'
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// Delete 硬删除, 包裹后的密钥随行一起消失
func (r *fileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.File{}).Error
}

func (r *fileRepository) SumSizeByOwner(ctx context.Context, ownerID string) (uint64, error) {
	var total uint64
	err := r.db.WithContext(ctx).Model(&models.File{}).Where("user_id = ?", ownerID).
		Select("COALESCE(SUM(size), 0)").Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("统计用户存储失败: %w", err)
	}
	return total, nil
}

func (r *fileRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.File{}).Where("user_id = ?", ownerID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计文件数量失败: %w", err)
	}
	return n, nil
}
