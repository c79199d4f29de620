package domain

import (
	"regexp"
	"strings"
)

// 前缀长度限制
const (
	MinPrefixLength = 3
	MaxPrefixLength = 30
)

// prefixRegex 前缀验证：字母数字加 . _ -，长度 3-30
var prefixRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,30}$`)

// ValidatePrefix 验证邮箱前缀格式。
func ValidatePrefix(prefix string) error {
	if !prefixRegex.MatchString(prefix) {
		return ErrInvalidPrefix
	}
	return nil
}

// NormalizeAddress 归一化邮箱地址：去除首尾空白与尖括号后转小写。
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.Trim(address, "<>")
	return strings.ToLower(address)
}

// SplitAddress 将地址拆分为前缀与域名。
// 地址形如 local@domain，任意一侧为空均视为非法。
func SplitAddress(address string) (prefix, domain string, ok bool) {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", "", false
	}
	return address[:at], address[at+1:], true
}

// DomainSet 是允许接收邮件的域名集合（小写）。
type DomainSet map[string]struct{}

// NewDomainSet 从域名列表构建集合。
func NewDomainSet(domains []string) DomainSet {
	set := make(DomainSet, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// Contains 判断域名是否在集合中（大小写不敏感）。
func (s DomainSet) Contains(domain string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}
