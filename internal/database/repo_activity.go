package database

import (
	"time"

	"gorm.io/gorm"
)

// ActivityRepo 活动事件数据仓库
type ActivityRepo struct {
	db *gorm.DB
}

func NewActivityRepo() *ActivityRepo {
	return &ActivityRepo{db: DB}
}

// Create 创建活动记录
func (r *ActivityRepo) Create(activity *Activity) error {
	return r.db.Create(activity).Error
}

// Count 统计活动总数
func (r *ActivityRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Activity{}).Count(&count).Error
	return count, err
}

// CountSince 统计指定时间之后的活动数
func (r *ActivityRepo) CountSince(since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&Activity{}).Where("timestamp >= ?", since).Count(&count).Error
	return count, err
}

// Recent 获取指定时间之后的活动，按时间倒序。userID 为 0 时不限用户
func (r *ActivityRepo) Recent(userID uint, since time.Time) ([]Activity, error) {
	var activities []Activity
	q := r.db.Where("timestamp >= ?", since).Order("timestamp desc")
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&activities).Error
	return activities, err
}

// CountFlagged 统计窗口内命中风险谓词的活动数：
// action 含 logout/failed，或自身已是 high 风险
func (r *ActivityRepo) CountFlagged(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&Activity{}).
		Where("user_id = ? AND timestamp >= ?", userID, since).
		Where("action LIKE ? OR action LIKE ? OR risk = ?", "%logout%", "%failed%", "high").
		Count(&count).Error
	return count, err
}

// DeleteOlderThan 删除早于 cutoff 的活动，返回删除行数
func (r *ActivityRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", cutoff).Delete(&Activity{})
	return result.RowsAffected, result.Error
}

// CountByRisk 按风险等级统计（指定时间之后）
func (r *ActivityRepo) CountByRisk(since time.Time) (map[string]int64, error) {
	type result struct {
		Risk  string
		Count int64
	}
	var results []result
	err := r.db.Model(&Activity{}).
		Select("risk, count(*) as count").
		Where("timestamp >= ?", since).
		Group("risk").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Risk] = r.Count
	}
	return counts, nil
}

// CountByDevice 按设备类型统计（指定时间之后）
func (r *ActivityRepo) CountByDevice(since time.Time) (map[string]int64, error) {
	type result struct {
		DeviceType string
		Count      int64
	}
	var results []result
	err := r.db.Model(&Activity{}).
		Select("device_device_type as device_type, count(*) as count").
		Where("timestamp >= ? AND device_device_type != ''", since).
		Group("device_device_type").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.DeviceType] = r.Count
	}
	return counts, nil
}

// CountByAction 按动作统计（指定时间之后）
func (r *ActivityRepo) CountByAction(since time.Time) (map[string]int64, error) {
	type result struct {
		Action string
		Count  int64
	}
	var results []result
	err := r.db.Model(&Activity{}).
		Select("action, count(*) as count").
		Where("timestamp >= ?", since).
		Group("action").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Action] = r.Count
	}
	return counts, nil
}

// List 分页查询活动
func (r *ActivityRepo) List(filter ActivityFilter) ([]Activity, int64, error) {
	var activities []Activity
	var total int64

	q := r.db.Model(&Activity{})
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Risk != "" {
		q = q.Where("risk = ?", filter.Risk)
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.Keyword != "" {
		q = q.Where("action LIKE ?", "%"+filter.Keyword+"%")
	}
	if filter.StartTime != "" {
		q = q.Where("timestamp >= ?", filter.StartTime)
	}
	if filter.EndTime != "" {
		q = q.Where("timestamp <= ?", filter.EndTime)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "timestamp"
	}
	sortOrder := filter.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	err := q.Order(sortBy + " " + sortOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&activities).Error
	return activities, total, err
}

// ActivityFilter 活动查询筛选条件
type ActivityFilter struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	UserID    uint
	Risk      string
	SessionID string
	Keyword   string
	StartTime string
	EndTime   string
}

func (f *ActivityFilter) Offset() int {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	return (f.Page - 1) * f.PageSize
}
