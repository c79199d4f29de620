package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flashmail/backend/internal/domain"
)

// Store 基于 Redis 的临时存储实现。
//
// 键结构：
//
//	mailbox:<id>                  邮箱记录 (JSON)
//	address:<normalized>          归一化地址 -> 邮箱 ID
//	email:<mailboxID>:<emailID>   邮件全文 (JSON)
//	emailSummary:<mailboxID>:<emailID> 邮件摘要 (JSON)
//	emails:<mailboxID>            邮件 ID 列表，LPUSH 保证最新在前
//
// 全部键带 TTL；复合写操作通过 MULTI/EXEC 提交。
type Store struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewStore 创建 Redis 存储。ttl 为邮箱与邮件的默认生存时间。
func NewStore(rdb *goredis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

func mailboxKey(id string) string               { return "mailbox:" + id }
func addressKey(address string) string          { return "address:" + address }
func emailKey(mailboxID, emailID string) string { return "email:" + mailboxID + ":" + emailID }
func summaryKey(mailboxID, emailID string) string {
	return "emailSummary:" + mailboxID + ":" + emailID
}
func indexKey(mailboxID string) string { return "emails:" + mailboxID }

// storeErr 将底层 Redis 错误归入 domain.ErrStoreFailure。
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreFailure, op, err)
}

// CreateMailbox 写入邮箱记录与地址索引。
//
// 地址索引通过 SET NX 条件写入，占用即失败，冲突作为原生结果返回，
// 不存在先查后写的竞争窗口。索引写入成功后再写邮箱记录；
// 记录写入失败时尽力回滚索引。
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	data, err := json.Marshal(mailbox)
	if err != nil {
		return storeErr("marshal mailbox", err)
	}

	normalized := domain.NormalizeAddress(mailbox.Address)
	ok, err := s.rdb.SetNX(ctx, addressKey(normalized), mailbox.ID, s.ttl).Result()
	if err != nil {
		return storeErr("reserve address", err)
	}
	if !ok {
		return domain.ErrAddressCollision
	}

	if err := s.rdb.Set(ctx, mailboxKey(mailbox.ID), data, s.ttl).Err(); err != nil {
		if delErr := s.rdb.Del(ctx, addressKey(normalized)).Err(); delErr != nil {
			s.log.Error("failed to roll back address index",
				zap.String("address", normalized), zap.Error(delErr))
		}
		return storeErr("save mailbox", err)
	}

	return nil
}

// GetMailbox 按 ID 获取邮箱记录。
func (s *Store) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	data, err := s.rdb.Get(ctx, mailboxKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrMailboxNotFound
		}
		return nil, storeErr("get mailbox", err)
	}

	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, storeErr("unmarshal mailbox", err)
	}
	return &mailbox, nil
}

// ResolveAddress 将地址解析为邮箱 ID。
// 先查归一化索引，未命中时回退原始大小写的历史索引。
func (s *Store) ResolveAddress(ctx context.Context, address string) (string, error) {
	normalized := domain.NormalizeAddress(address)
	if normalized == "" {
		return "", domain.ErrMailboxNotFound
	}

	id, err := s.rdb.Get(ctx, addressKey(normalized)).Result()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, goredis.Nil) {
		return "", storeErr("resolve address", err)
	}

	if address != normalized {
		id, err = s.rdb.Get(ctx, addressKey(address)).Result()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, goredis.Nil) {
			return "", storeErr("resolve legacy address", err)
		}
	}

	return "", domain.ErrMailboxNotFound
}

// AddressExists 检查地址是否已被占用（含历史索引变体）。
func (s *Store) AddressExists(ctx context.Context, address string) (bool, error) {
	normalized := domain.NormalizeAddress(address)
	if normalized == "" {
		return false, nil
	}

	keys := []string{addressKey(normalized)}
	if address != normalized {
		keys = append(keys, addressKey(address))
	}

	count, err := s.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		return false, storeErr("check address", err)
	}
	return count > 0, nil
}

// DeleteMailbox 级联删除邮箱与其全部邮件。不存在时视为成功。
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	mailbox, err := s.GetMailbox(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMailboxNotFound) {
			return nil
		}
		return err
	}

	emailIDs, err := s.rdb.LRange(ctx, indexKey(id), 0, -1).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return storeErr("list mailbox emails", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, mailboxKey(id))
		if mailbox.Address != "" {
			normalized := domain.NormalizeAddress(mailbox.Address)
			pipe.Del(ctx, addressKey(normalized))
			if mailbox.Address != normalized {
				pipe.Del(ctx, addressKey(mailbox.Address))
			}
		}
		for _, emailID := range emailIDs {
			pipe.Del(ctx, emailKey(id, emailID))
			pipe.Del(ctx, summaryKey(id, emailID))
		}
		pipe.Del(ctx, indexKey(id))
		return nil
	})
	if err != nil {
		return storeErr("delete mailbox", err)
	}

	return nil
}

// SaveEmail 原子地写入邮件全文、摘要，并将 ID 插入索引头部。
//
// 邮件与索引的 TTL 不超过所属邮箱的剩余存活时间，
// 保证邮件不会比邮箱记录活得更久。
func (s *Store) SaveEmail(ctx context.Context, email *domain.Email) error {
	ttl, err := s.emailTTL(ctx, email.MailboxID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(email)
	if err != nil {
		return storeErr("marshal email", err)
	}
	summaryData, err := json.Marshal(email.Summarize())
	if err != nil {
		return storeErr("marshal summary", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, emailKey(email.MailboxID, email.ID), data, ttl)
		pipe.Set(ctx, summaryKey(email.MailboxID, email.ID), summaryData, ttl)
		pipe.LPush(ctx, indexKey(email.MailboxID), email.ID)
		pipe.Expire(ctx, indexKey(email.MailboxID), ttl)
		return nil
	})
	if err != nil {
		return storeErr("save email", err)
	}

	return nil
}

// emailTTL 取默认 TTL 与邮箱剩余存活时间中较小者。
func (s *Store) emailTTL(ctx context.Context, mailboxID string) (time.Duration, error) {
	remaining, err := s.rdb.TTL(ctx, mailboxKey(mailboxID)).Result()
	if err != nil {
		return 0, storeErr("mailbox ttl", err)
	}
	// go-redis 对 TTL 的特殊应答保留原值：-2 键不存在，-1 无过期时间
	if remaining == -2 {
		return 0, domain.ErrMailboxNotFound
	}
	if remaining == -1 {
		return s.ttl, nil
	}
	if remaining < s.ttl {
		return remaining, nil
	}
	return s.ttl, nil
}

// ListEmailSummaries 按最新在前的顺序返回摘要。
//
// 摘要键缺失或无法解析时，回退加载全文并即时推导；
// 全文也缺失的 ID（已过期残留）直接跳过。
func (s *Store) ListEmailSummaries(ctx context.Context, mailboxID string) ([]domain.EmailSummary, error) {
	emailIDs, err := s.rdb.LRange(ctx, indexKey(mailboxID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []domain.EmailSummary{}, nil
		}
		return nil, storeErr("list email index", err)
	}
	if len(emailIDs) == 0 {
		return []domain.EmailSummary{}, nil
	}

	keys := make([]string, len(emailIDs))
	for i, emailID := range emailIDs {
		keys[i] = summaryKey(mailboxID, emailID)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr("mget summaries", err)
	}

	summaries := make([]domain.EmailSummary, 0, len(emailIDs))
	for i, value := range values {
		if raw, ok := value.(string); ok {
			var summary domain.EmailSummary
			if err := json.Unmarshal([]byte(raw), &summary); err == nil {
				summaries = append(summaries, summary)
				continue
			}
		}

		// 历史数据兼容：摘要缺失或损坏时从全文重建
		email, err := s.GetEmail(ctx, mailboxID, emailIDs[i])
		if err != nil {
			if errors.Is(err, domain.ErrEmailNotFound) {
				continue
			}
			return nil, err
		}
		summaries = append(summaries, *email.Summarize())
	}

	return summaries, nil
}

// GetEmail 获取单封邮件全文。
func (s *Store) GetEmail(ctx context.Context, mailboxID, emailID string) (*domain.Email, error) {
	data, err := s.rdb.Get(ctx, emailKey(mailboxID, emailID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrEmailNotFound
		}
		return nil, storeErr("get email", err)
	}

	var email domain.Email
	if err := json.Unmarshal([]byte(data), &email); err != nil {
		return nil, storeErr("unmarshal email", err)
	}
	return &email, nil
}

// DeleteEmail 删除邮件全文与摘要，并移除索引中的一个 ID 出现。幂等。
func (s *Store) DeleteEmail(ctx context.Context, mailboxID, emailID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, emailKey(mailboxID, emailID))
		pipe.Del(ctx, summaryKey(mailboxID, emailID))
		pipe.LRem(ctx, indexKey(mailboxID), 1, emailID)
		return nil
	})
	if err != nil {
		return storeErr("delete email", err)
	}
	return nil
}

// Ping 探测 Redis 连接。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	return s.rdb.Close()
}
