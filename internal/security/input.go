package security

import (
	"regexp"
	"strings"
)

// 登录输入注入检测规则。命中即整体拒绝，不提示具体原因，
// 也不透露账户是否存在。
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)<\s*iframe`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`), // onerror= / onload= / onclick= ...
}

// ContainsInjection 检测字符串中是否包含脚本/标记注入特征
func ContainsInjection(s string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// SanitizeUsername 去除首尾空白与控制字符，保留可见字符原样
func SanitizeUsername(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
