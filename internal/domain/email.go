package domain

import "time"

// Email 表示临时邮箱收到的一封邮件。
type Email struct {
	ID          string        `json:"id"`
	MailboxID   string        `json:"mailboxId"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Subject     string        `json:"subject"`
	Text        string        `json:"text"`
	HTML        string        `json:"html"`
	Attachments []*Attachment `json:"attachments"`
	// Date 为发件方声明的时间，尽力解析；ReceivedAt 为系统落库时间。
	Date       time.Time `json:"date"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// EmailSummary 是邮件的最小投影，用于列表展示。
// 永远可以从完整 Email 重新推导。
type EmailSummary struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Summarize 从完整邮件推导摘要。
func (e *Email) Summarize() *EmailSummary {
	return &EmailSummary{
		ID:         e.ID,
		From:       e.From,
		Subject:    e.Subject,
		ReceivedAt: e.ReceivedAt,
	}
}
