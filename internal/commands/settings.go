package commands

import (
	"flag"
	"fmt"

	"shadowhawk/internal/output"
	"shadowhawk/internal/webconfig"
)

func SettingsShow(args []string) int {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		output.Printf("错误: %s\n", err)
		return 2
	}

	cfg, err := webconfig.Load()
	if err != nil {
		output.Printf("错误: 读取配置失败: %s\n", err)
		return 1
	}
	output.Println("shadowhawk 配置")
	fmt.Printf("路径: %s\n", webconfig.ConfigPath())
	fmt.Printf("监听: %s\n", cfg.ListenAddr())
	fmt.Printf("数据库: %s\n", cfg.Database.Driver)
	fmt.Printf("日志模式: %s (%s)\n", cfg.Log.Mode, cfg.Log.Level)
	fmt.Printf("最大登录失败次数: %d\n", cfg.Security.MaxLoginAttempts)
	fmt.Printf("锁定时长: %s\n", cfg.LockDuration())
	fmt.Printf("追踪间隔: %s\n", cfg.TrackingInterval())
	fmt.Printf("活动保留: %s\n", cfg.MaxSessionDuration())
	fmt.Printf("外部告警通知: %t\n", cfg.Alert.NotificationsEnabled)
	return 0
}

func SettingsSetMode(args []string) int {
	fs := flag.NewFlagSet("settings set-mode", flag.ContinueOnError)
	mode := fs.String("mode", "production", "模式: production 或 debug")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		output.Printf("错误: %s\n", err)
		return 2
	}

	if *mode != "production" && *mode != "debug" {
		output.Println("错误: mode 仅支持 production 或 debug")
		return 2
	}

	cfg, err := webconfig.Load()
	if err != nil {
		output.Printf("错误: 读取配置失败: %s\n", err)
		return 1
	}
	cfg.Log.Mode = *mode
	if *mode == "debug" {
		cfg.Log.Level = "debug"
	} else {
		cfg.Log.Level = "info"
	}
	if err := webconfig.Save(cfg); err != nil {
		output.Printf("错误: 保存配置失败: %s\n", err)
		return 1
	}
	output.SetDebug(cfg.IsDebug())
	output.Printf("已设置模式: %s\n", cfg.Log.Mode)
	return 0
}
