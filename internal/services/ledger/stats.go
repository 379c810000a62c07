package ledger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
)

const DefaultHistoryDays = 30

type FileStats struct {
	FileID         string     `json:"file_id"`
	TotalViews     int64      `json:"total_views"`
	TotalDownloads int64      `json:"total_downloads"`
	UniqueVisitors int64      `json:"unique_visitors"`
	LastAccessed   *time.Time `json:"last_accessed"`
	DirectShares   int64      `json:"direct_shares"`
	ShareLinks     int64      `json:"share_links"`
	ActiveLinks    int64      `json:"active_links"`
}

type OwnerStats struct {
	quota.Usage
	TotalViews     int64 `json:"total_views"`
	TotalDownloads int64 `json:"total_downloads"`
}

type DailyAccess struct {
	Date      string `json:"date"` // UTC 日期 YYYY-MM-DD
	Views     int64  `json:"views"`
	Downloads int64  `json:"downloads"`
}

// StatsService 统计结果每次从访问记录实时聚合
type StatsService interface {
	FileStats(ctx context.Context, actor *identity.Identity, fileID string) (*FileStats, error)
	OwnerStats(ctx context.Context, actor *identity.Identity) (*OwnerStats, error)
	AccessHistory(ctx context.Context, actor *identity.Identity, fileID string, days int) ([]models.AccessEvent, error)
	DailyBreakdown(ctx context.Context, actor *identity.Identity, fileID string, days int) ([]DailyAccess, error)
}

type statsService struct {
	files   repositories.FileRepository
	links   repositories.ShareLinkRepository
	directs repositories.DirectShareRepository
	events  repositories.AccessEventRepository
	quota   quota.Service
	now     func() time.Time
}

func NewStatsService(
	files repositories.FileRepository,
	links repositories.ShareLinkRepository,
	directs repositories.DirectShareRepository,
	events repositories.AccessEventRepository,
	quotaSvc quota.Service,
	now func() time.Time,
) StatsService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &statsService{files: files, links: links, directs: directs, events: events, quota: quotaSvc, now: now}
}

// authorize 文件所有者或管理员可以查看统计
func (s *statsService) authorize(ctx context.Context, actor *identity.Identity, fileID string) (*models.File, error) {
	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, xerr.ErrFileNotFound
	}
	if file.UserID != actor.ID && !actor.IsAdmin() {
		return nil, xerr.ErrPermissionDenied
	}
	return file, nil
}

func (s *statsService) FileStats(ctx context.Context, actor *identity.Identity, fileID string) (*FileStats, error) {
	if _, err := s.authorize(ctx, actor, fileID); err != nil {
		return nil, err
	}
	counts, err := s.events.CountsByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	visitors, err := s.events.UniqueVisitors(ctx, fileID)
	if err != nil {
		return nil, err
	}
	last, err := s.events.LastAccessed(ctx, fileID)
	if err != nil {
		return nil, err
	}
	directs, err := s.directs.CountByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	total, active, err := s.links.CountByFile(ctx, fileID, s.now())
	if err != nil {
		return nil, err
	}
	return &FileStats{
		FileID:         fileID,
		TotalViews:     counts.Views,
		TotalDownloads: counts.Downloads,
		UniqueVisitors: visitors,
		LastAccessed:   last,
		DirectShares:   directs,
		ShareLinks:     total,
		ActiveLinks:    active,
	}, nil
}

func (s *statsService) OwnerStats(ctx context.Context, actor *identity.Identity) (*OwnerStats, error) {
	usage, err := s.quota.Usage(ctx, actor.ID, s.now())
	if err != nil {
		return nil, err
	}
	counts, err := s.events.CountsByOwner(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &OwnerStats{Usage: *usage, TotalViews: counts.Views, TotalDownloads: counts.Downloads}, nil
}

func (s *statsService) AccessHistory(ctx context.Context, actor *identity.Identity, fileID string, days int) ([]models.AccessEvent, error) {
	if _, err := s.authorize(ctx, actor, fileID); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultHistoryDays
	}
	return s.events.ListSince(ctx, fileID, s.now().AddDate(0, 0, -days))
}

func (s *statsService) DailyBreakdown(ctx context.Context, actor *identity.Identity, fileID string, days int) ([]DailyAccess, error) {
	events, err := s.AccessHistory(ctx, actor, fileID, days)
	if err != nil {
		return nil, err
	}
	return GroupByDay(events), nil
}

// GroupByDay 按 UTC 日期聚合, 最近的日期在前
func GroupByDay(events []models.AccessEvent) []DailyAccess {
	var out []DailyAccess
	index := map[string]int{}
	for _, e := range events {
		day := e.AccessedAt.UTC().Format(time.DateOnly)
		i, ok := index[day]
		if !ok {
			i = len(out)
			index[day] = i
			out = append(out, DailyAccess{Date: day})
		}
		switch e.AccessType {
		case models.AccessView:
			out[i].Views++
		case models.AccessDownload:
			out[i].Downloads++
		}
	}
	slices.SortFunc(out, func(a, b DailyAccess) int { return strings.Compare(b.Date, a.Date) })
	return out
}
