package database

import (
	"shadowhawk/internal/constants"
	"shadowhawk/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

type seedUser struct {
	Username   string
	Password   string
	Name       string
	Email      string
	Role       string
	Department string
	Score      int
}

// 首次启动时写入的演示账户
var defaultUsers = []seedUser{
	{"admin", "admin123", "Sarah Chen", "sarah.chen@shadowhawk.local", constants.RoleAdmin, "Security Operations", 95},
	{"jsmith", "analyst1", "James Smith", "j.smith@shadowhawk.local", constants.RoleAnalyst, "Threat Intelligence", 78},
	{"mgarcia", "analyst2", "Maria Garcia", "m.garcia@shadowhawk.local", constants.RoleAnalyst, "Incident Response", 82},
	{"rviewer", "viewer01", "Ethan Ross", "e.ross@shadowhawk.local", constants.RoleViewer, "Compliance", 64},
}

// SeedDefaultUsers 当用户表为空时写入演示账户，密码一律以 bcrypt 存储。
// 非空表不做任何修改。
func SeedDefaultUsers() error {
	repo := NewUserRepo()
	count, err := repo.Count()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, s := range defaultUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &User{
			Username:      s.Username,
			PasswordHash:  string(hash),
			Name:          s.Name,
			Email:         s.Email,
			Role:          s.Role,
			Department:    s.Department,
			SecurityScore: s.Score,
			IsActive:      true,
		}
		if err := repo.Create(user); err != nil {
			return err
		}
	}

	logger.DB.Info().Int("count", len(defaultUsers)).Msg("已写入默认演示账户")
	return nil
}
