package content

import (
	"context"
	"regexp"
)

// Gateway 内容存储网关（外部协作方）。
// 本服务只在记录里传递内容哈希字符串，从不解释文件字节。
type Gateway interface {
	// Pin 确保指定内容哈希已被固定，返回网关侧引用
	Pin(ctx context.Context, hash string) (string, error)
	// Exists 检查内容哈希是否可检索
	Exists(ctx context.Context, hash string) (bool, error)
}

// CIDv0（Qm开头base58）或 0x 前缀的32字节哈希
var hashPattern = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}|baf[a-z2-7]{20,}|0x[0-9a-fA-F]{64})$`)

// ValidHash 校验内容哈希格式
func ValidHash(hash string) bool {
	return hashPattern.MatchString(hash)
}
