package database

import (
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepo 行为基线数据仓库
type ProfileRepo struct {
	db *gorm.DB
}

func NewProfileRepo() *ProfileRepo {
	return &ProfileRepo{db: DB}
}

// Replace 写入用户基线，已存在则整体替换（不合并）
func (r *ProfileRepo) Replace(profile *BehaviorProfile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"login_hour_min", "login_hour_max",
			"avg_session_minutes", "avg_actions_per_session",
			"common_actions", "frequent_pages", "typical_locations",
			"baseline_risk", "learned_at", "updated_at",
		}),
	}).Create(profile).Error
}

// Get 获取用户基线，不存在时返回 gorm.ErrRecordNotFound
func (r *ProfileRepo) Get(userID uint) (*BehaviorProfile, error) {
	var profile BehaviorProfile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepo) Delete(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&BehaviorProfile{}).Error
}

func (r *ProfileRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&BehaviorProfile{}).Count(&count).Error
	return count, err
}

// CommonActionList 解码 JSON 动作列表
func (p *BehaviorProfile) CommonActionList() []string {
	var actions []string
	if p.CommonActions != "" {
		json.Unmarshal([]byte(p.CommonActions), &actions)
	}
	return actions
}

// SetCommonActions 编码动作列表为 JSON
func (p *BehaviorProfile) SetCommonActions(actions []string) {
	data, _ := json.Marshal(actions)
	p.CommonActions = string(data)
}

// FrequentPageList 解码 JSON 页面列表
func (p *BehaviorProfile) FrequentPageList() []string {
	var pages []string
	if p.FrequentPages != "" {
		json.Unmarshal([]byte(p.FrequentPages), &pages)
	}
	return pages
}

// SetFrequentPages 编码页面列表为 JSON
func (p *BehaviorProfile) SetFrequentPages(pages []string) {
	data, _ := json.Marshal(pages)
	p.FrequentPages = string(data)
}

// TypicalLocationList 解码 JSON 位置列表
func (p *BehaviorProfile) TypicalLocationList() []string {
	var locations []string
	if p.TypicalLocations != "" {
		json.Unmarshal([]byte(p.TypicalLocations), &locations)
	}
	return locations
}

// SetTypicalLocations 编码位置列表为 JSON
func (p *BehaviorProfile) SetTypicalLocations(locations []string) {
	data, _ := json.Marshal(locations)
	p.TypicalLocations = string(data)
}
