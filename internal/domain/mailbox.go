package domain

import (
	"time"
)

// Mailbox 表示一个临时邮箱的业务实体。
//
// 记录在创建后不可变：到期或被显式删除之前不会发生任何字段变更。
type Mailbox struct {
	ID             string    `json:"id"`
	Prefix         string    `json:"prefix"`
	Domain         string    `json:"domain"`
	Address        string    `json:"address"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsCustomPrefix bool      `json:"isCustomPrefix"`
}
