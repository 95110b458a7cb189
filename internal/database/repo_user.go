package database

import (
	"time"

	"gorm.io/gorm"
)

type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo() *UserRepo {
	return &UserRepo{db: DB}
}

func (r *UserRepo) Create(user *User) error {
	return r.db.Create(user).Error
}

func (r *UserRepo) FindByUsername(username string) (*User, error) {
	var user User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) FindByID(id uint) (*User, error) {
	var user User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) UpdatePassword(id uint, hash string) error {
	return r.db.Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"password_hash":   hash,
		"failed_attempts": 0,
		"locked_until":    nil,
	}).Error
}

func (r *UserRepo) IncrementFailedAttempts(id uint) error {
	return r.db.Model(&User{}).Where("id = ?", id).
		Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error
}

// Unlock 清除锁定并恢复激活状态（惰性解锁入口）
func (r *UserRepo) Unlock(id uint) error {
	return r.db.Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failed_attempts": 0,
		"locked_until":    nil,
		"is_active":       true,
	}).Error
}

// Lock 锁定账户。锁定期内 is_active 必须为 false（不变式）
func (r *UserRepo) Lock(id uint, until time.Time) error {
	return r.db.Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"locked_until": until,
		"is_active":    false,
	}).Error
}

func (r *UserRepo) RecordLogin(id uint, at time.Time) error {
	return r.db.Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"failed_attempts": 0,
		"locked_until":    nil,
		"is_active":       true,
		"last_login":      at,
	}).Error
}

func (r *UserRepo) UpdateSecurityScore(id uint, score int) error {
	return r.db.Model(&User{}).Where("id = ?", id).Update("security_score", score).Error
}

func (r *UserRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&User{}).Count(&count).Error
	return count, err
}

func (r *UserRepo) List() ([]User, error) {
	var users []User
	err := r.db.Order("id asc").Find(&users).Error
	return users, err
}

func (r *UserRepo) Update(user *User) error {
	return r.db.Save(user).Error
}

// Delete 删除用户
func (r *UserRepo) Delete(id uint) error {
	return r.db.Delete(&User{}, id).Error
}
