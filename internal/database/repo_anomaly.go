package database

import (
	"time"

	"gorm.io/gorm"
)

// AnomalyRepo 异常检测结果数据仓库
type AnomalyRepo struct {
	db *gorm.DB
}

func NewAnomalyRepo() *AnomalyRepo {
	return &AnomalyRepo{db: DB}
}

func (r *AnomalyRepo) Create(anomaly *Anomaly) error {
	return r.db.Create(anomaly).Error
}

// Recent 最近 N 条异常。userID 为 0 时不限用户
func (r *AnomalyRepo) Recent(userID uint, limit int) ([]Anomaly, error) {
	var anomalies []Anomaly
	q := r.db.Order("created_at desc").Limit(limit)
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Find(&anomalies).Error
	return anomalies, err
}

// CountBySeverity 按严重程度统计（指定时间之后）
func (r *AnomalyRepo) CountBySeverity(since time.Time) (map[string]int64, error) {
	type result struct {
		Severity string
		Count    int64
	}
	var results []result
	err := r.db.Model(&Anomaly{}).
		Select("severity, count(*) as count").
		Where("created_at >= ?", since).
		Group("severity").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range results {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}

// DeleteOlderThan 删除早于 cutoff 的异常，和活动保留策略一致
func (r *AnomalyRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&Anomaly{})
	return result.RowsAffected, result.Error
}

func (r *AnomalyRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Anomaly{}).Count(&count).Error
	return count, err
}
