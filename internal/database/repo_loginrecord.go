package database

import (
	"time"

	"gorm.io/gorm"
)

// LoginRecordRepo 登录记录数据仓库
type LoginRecordRepo struct {
	db *gorm.DB
}

func NewLoginRecordRepo() *LoginRecordRepo {
	return &LoginRecordRepo{db: DB}
}

// Create 创建登录记录（只追加）
func (r *LoginRecordRepo) Create(rec *LoginRecord) error {
	return r.db.Create(rec).Error
}

// Count 统计登录记录总数
func (r *LoginRecordRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&LoginRecord{}).Count(&count).Error
	return count, err
}

// CountByStatus 按状态统计（指定时间之后）
func (r *LoginRecordRepo) CountByStatus(status string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&LoginRecord{}).
		Where("status = ? AND created_at >= ?", status, since).
		Count(&count).Error
	return count, err
}

// Recent 获取用户最近 N 条登录记录
func (r *LoginRecordRepo) Recent(userID uint, limit int) ([]LoginRecord, error) {
	var records []LoginRecord
	q := r.db.Order("created_at desc").Limit(limit)
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&records).Error
	return records, err
}

// List 分页查询登录记录
func (r *LoginRecordRepo) List(filter LoginRecordFilter) ([]LoginRecord, int64, error) {
	var records []LoginRecord
	var total int64

	q := r.db.Model(&LoginRecord{})
	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Risk != "" {
		q = q.Where("risk = ?", filter.Risk)
	}
	if filter.StartTime != "" {
		q = q.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != "" {
		q = q.Where("created_at <= ?", filter.EndTime)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := filter.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	err := q.Order(sortBy + " " + sortOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&records).Error
	return records, total, err
}

// LoginRecordFilter 登录记录查询筛选条件
type LoginRecordFilter struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
	UserID    uint
	Status    string
	Risk      string
	StartTime string
	EndTime   string
}

func (f *LoginRecordFilter) Offset() int {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	return (f.Page - 1) * f.PageSize
}
