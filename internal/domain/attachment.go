package domain

// Attachment 表示邮件附件。
type Attachment struct {
	ID          string `json:"id"`          // 附件唯一标识
	Filename    string `json:"filename"`    // 文件名
	ContentType string `json:"contentType"` // MIME类型
	Size        int64  `json:"size"`        // 大小（字节）
	Content     []byte `json:"content"`     // 附件内容（序列化为 base64）
}
