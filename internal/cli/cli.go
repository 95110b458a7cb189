package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"shadowhawk/internal/commands"
	"shadowhawk/internal/output"
	"shadowhawk/internal/version"
)

func Run(args []string) int {
	if len(args) < 2 {
		return commands.RunServe(nil)
	}

	switch args[1] {
	case "-h", "--help", "help":
		output.Println(usage())
		return 0
	case "-v", "--version", "version":
		output.Printf("shadowhawk %s (build %s)\n", version.Version, version.Build)
		return 0
	case "settings":
		return handleSettings(args[2:])
	case "reset-password":
		return commands.ResetPassword(args[2:])
	default:
		// 所有其他参数传递给 serve
		return commands.RunServe(args[1:])
	}
}

func usage() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "ShadowHawk (shadowhawk) - 安全运营监控后台")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "用法:")
	fmt.Fprintln(b, "  shadowhawk [参数]                启动 Web 服务")
	fmt.Fprintln(b, "  shadowhawk <命令> [参数]")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "参数:")
	fmt.Fprintln(b, "  -p, --port PORT       指定监听端口")
	fmt.Fprintln(b, "  -b, --bind ADDR       指定绑定地址 (默认 0.0.0.0)")
	fmt.Fprintln(b, "  -u, --user USER       初始管理员用户名")
	fmt.Fprintln(b, "      --password PASS   初始管理员密码 (需配合 --user)")
	fmt.Fprintln(b, "      --seed-demo       首次启动写入演示用户")
	fmt.Fprintln(b, "      --debug           启用调试模式")
	fmt.Fprintln(b, "  -h, --help            显示帮助")
	fmt.Fprintln(b, "  -v, --version         显示版本")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "辅助命令:")
	fmt.Fprintln(b, "  settings         查看/设置运行模式")
	fmt.Fprintln(b, "  reset-password   重置用户密码（同时解除锁定）")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "示例:")
	fmt.Fprintln(b, "  shadowhawk                              # 启动 Web 服务")
	fmt.Fprintln(b, "  shadowhawk -p 9090 -b 127.0.0.1         # 指定端口和绑定地址")
	fmt.Fprintln(b, "  shadowhawk -u admin --password pass123  # 启动并创建初始用户")
	fmt.Fprintln(b, "  shadowhawk reset-password admin newpass # 重置密码")
	return b.String()
}

func handleSettings(args []string) int {
	if len(args) == 0 {
		output.Println(settingsUsage())
		return 2
	}
	switch args[0] {
	case "show":
		return commands.SettingsShow(args[1:])
	case "set-mode":
		return commands.SettingsSetMode(args[1:])
	default:
		output.Printf("未知 settings 子命令: %s\n\n", args[0])
		output.Println(settingsUsage())
		return 2
	}
}

func settingsUsage() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "用法:\n  shadowhawk settings <子命令> [参数]")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "子命令:")
	fmt.Fprintln(b, "  show      显示当前 shadowhawk 配置")
	fmt.Fprintln(b, "  set-mode  设置模式（production/debug）")
	return b.String()
}

var ErrInvalidArgs = errors.New("参数无效")

func PrintError(err error) {
	if err == nil {
		return
	}
	output.Printf("错误: %s\n", err)
	os.Exit(1)
}
