package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shadowhawk/internal/anomaly"
	"shadowhawk/internal/auth"
	"shadowhawk/internal/constants"
	"shadowhawk/internal/database"
	"shadowhawk/internal/handlers"
	"shadowhawk/internal/logger"
	"shadowhawk/internal/metrics"
	"shadowhawk/internal/notify"
	"shadowhawk/internal/security"
	"shadowhawk/internal/tracker"
	"shadowhawk/internal/version"
	"shadowhawk/internal/web"
	"shadowhawk/internal/webconfig"

	"golang.org/x/crypto/bcrypt"
)

func RunServe(args []string) int {
	// Load config
	cfg, err := webconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		return 1
	}

	// CLI arg overrides
	portOverride := false
	initUser := ""
	initPass := ""
	seedDemo := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--port", "-p":
			if i+1 < len(args) {
				i++
				fmt.Sscanf(args[i], "%d", &cfg.Server.Port)
				portOverride = true
			}
		case "--bind", "-b":
			if i+1 < len(args) {
				i++
				cfg.Server.Bind = args[i]
			}
		case "--user", "-u":
			if i+1 < len(args) {
				i++
				initUser = args[i]
			}
		case "--password", "--pass":
			if i+1 < len(args) {
				i++
				initPass = args[i]
			}
		case "--seed-demo":
			seedDemo = true
		case "--debug":
			cfg.Log.Mode = "debug"
			cfg.Log.Level = "debug"
		}
	}

	// 如果用户通过 --port 指定了端口，保存到配置文件
	if portOverride {
		if err := webconfig.Save(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "保存配置文件失败: %v\n", err)
		} else {
			fmt.Printf("端口 %d 已保存到配置文件，下次启动将自动使用\n", cfg.Server.Port)
		}
	}

	// Init logger
	logger.Init(cfg.Log)
	logger.Log.Info().Str("version", version.Version).Msg("ShadowHawk 启动中...")

	// Init database
	if err := database.Init(cfg.Database, cfg.IsDebug()); err != nil {
		logger.Log.Fatal().Err(err).Msg("数据库初始化失败")
		return 1
	}
	defer database.Close()

	userRepo := database.NewUserRepo()

	// 如果指定了 --user 和 --password，创建初始管理员用户
	if initUser != "" && initPass != "" {
		count, _ := userRepo.Count()
		if count == 0 {
			if len(initPass) < cfg.Security.PasswordMinLength {
				fmt.Fprintf(os.Stderr, "密码至少 %d 位\n", cfg.Security.PasswordMinLength)
				return 1
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(initPass), bcrypt.DefaultCost)
			if err != nil {
				fmt.Fprintf(os.Stderr, "密码加密失败: %v\n", err)
				return 1
			}
			if err := userRepo.Create(&database.User{
				Username:     initUser,
				PasswordHash: string(hash),
				Role:         constants.RoleAdmin,
				IsActive:     true,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "创建初始用户失败: %v\n", err)
				return 1
			}
			fmt.Printf("初始管理员用户 '%s' 已创建\n", initUser)
		} else {
			fmt.Printf("已存在 %d 个用户，跳过初始用户创建\n", count)
		}
	}

	// 演示数据：只在用户表为空时写入
	if seedDemo {
		if err := database.SeedDefaultUsers(); err != nil {
			logger.Log.Error().Err(err).Msg("演示用户写入失败")
		}
	}

	// WebSocket Hub（传入 CORS 白名单用于 Origin 校验）
	wsHub := web.NewWSHub(cfg.Server.CORSOrigins)
	go wsHub.Run()

	// 通知管理器：从设置表读取各通道配置
	notifyMgr := notify.NewManager()
	notifyMgr.Reload(database.NewSettingRepo())

	// 告警落库 + WS 推送 + 外部通知
	alertSink := security.NewAlertSink(wsHub, cfg.Alert.NotificationsEnabled)
	alertSink.SetNotifier(notifyMgr)

	// 认证管理器（凭据校验 + 连续失败锁定）
	authMgr := auth.NewManager(&cfg)
	authMgr.SetAlertSink(alertSink)

	// 活动追踪器：事件落库、风险分级、保留期清理
	trk := tracker.New(&cfg)
	go trk.Start()
	defer trk.Stop()

	// 行为基线估计器
	est := anomaly.NewEstimator(anomaly.DefaultRingSize)

	// 指标聚合器：周期重算快照并经 WS 推送
	agg := metrics.NewAggregator(trk, wsHub)
	go agg.Start()
	defer agg.Stop()

	// 构建路由
	router := web.NewRouter()
	handlerSet := handlers.NewSet(&cfg, authMgr, trk, est, agg, alertSink, notifyMgr, wsHub)
	handlerSet.Register(router)

	// 中间件链。审计回调注入给鉴权中间件（JWT 失败、越权访问）
	auditRepo := database.NewAuditLogRepo()
	web.SetAuthAuditFunc(func(action, result, detail, ip, username string, userID uint) {
		auditRepo.Create(&database.AuditLog{
			UserID:   userID,
			Username: username,
			Action:   action,
			Result:   result,
			Detail:   detail,
			IP:       ip,
		})
	})

	skipAuthPaths := []string{
		"/api/auth/login",
		"/api/auth/setup",
		"/api/health",
	}

	// 登录接口限流：每 IP 每分钟最多 10 次
	rlCtx, rlCancel := context.WithCancel(context.Background())
	defer rlCancel()
	loginLimiter := web.NewRateLimiter(10, time.Minute, rlCtx)
	rateLimitPaths := []string{"/api/auth/login", "/api/auth/setup"}
	// 事件上报限流：每 IP 每分钟最多 300 条
	trackLimiter := web.NewRateLimiter(300, time.Minute, rlCtx)

	handler := web.Chain(
		router,
		web.RecoveryMiddleware,
		web.SecurityHeadersMiddleware,
		web.RequestIDMiddleware,
		web.RequestLogMiddleware,
		web.CORSMiddleware(cfg.Server.CORSOrigins),
		web.MaxBodySizeMiddleware(2<<20), // 2 MB
		web.RateLimitMiddleware(loginLimiter, rateLimitPaths),
		web.RateLimitMiddleware(trackLimiter, []string{"/api/track"}),
		web.AuthMiddleware(cfg.Auth.JWTSecret, skipAuthPaths),
	)

	// 绑定到非回环地址时提示
	if cfg.Server.Bind != "127.0.0.1" && cfg.Server.Bind != "localhost" {
		logger.Log.Warn().
			Str("bind", cfg.Server.Bind).
			Msg("Web 服务绑定到非回环地址，请确保已配置防火墙规则")
	}

	// 检测端口是否被占用
	testAddr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	ln, err := net.Listen("tcp", testAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n端口 %d 已被占用，无法启动服务\n", cfg.Server.Port)
		fmt.Fprintf(os.Stderr, "可使用 --port 参数指定其他端口：shadowhawk -p 18921\n\n")
		logger.Log.Error().Int("port", cfg.Server.Port).Err(err).Msg("端口被占用")
		return 1
	}
	ln.Close()

	addr := cfg.ListenAddr()
	logger.Log.Info().Str("addr", addr).Msg("Web 服务已启动")
	fmt.Printf("ShadowHawk %s\n", version.Version)
	fmt.Printf("  ➜ http://localhost:%d\n", cfg.Server.Port)
	if cfg.Server.Bind == "0.0.0.0" || cfg.Server.Bind == "" {
		if addrs, err := net.InterfaceAddrs(); err == nil {
			for _, a := range addrs {
				if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
					fmt.Printf("  ➜ http://%s:%d\n", ipnet.IP.String(), cfg.Server.Port)
				}
			}
		}
	}

	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("服务启动失败")
		}
	}()

	// 信号处理（Ctrl+C / kill），优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Log.Info().Msg("正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("服务关闭超时，强制退出")
		srv.Close()
	}

	logger.Log.Info().Msg("服务已停止")
	return 0
}
