package rotator

import (
	"errors"
	"log"
	"sync/atomic"
)

var (
	// ErrNoCredentials 未配置任何凭证，调用方应快速失败
	ErrNoCredentials = errors.New("未配置可用的 API key")
	// ErrExhausted 一次请求内轮询完整个池仍被限流
	ErrExhausted = errors.New("所有 API key 均已限流")
)

// Rotator 对一组外部 API 凭证做轮询切换。
// 被限流的 key 不会被移除，下一轮可能已恢复。
type Rotator struct {
	keys []string
	idx  atomic.Int64
}

func New(keys []string) *Rotator {
	cleaned := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		log.Println("Warning: credential pool is empty")
	} else {
		log.Printf("Credential pool initialized with %d keys", len(cleaned))
	}
	return &Rotator{keys: cleaned}
}

// Current 返回当前凭证
func (r *Rotator) Current() (string, error) {
	if len(r.keys) == 0 {
		return "", ErrNoCredentials
	}
	i := int(r.idx.Load()) % len(r.keys)
	return r.keys[i], nil
}

// Advance 切换到下一个凭证，到尾部后回绕
func (r *Rotator) Advance() {
	if len(r.keys) < 2 {
		return
	}
	from := int(r.idx.Load()) % len(r.keys)
	to := int(r.idx.Add(1)) % len(r.keys)
	log.Printf("Credential rotated: %s -> %s", maskKey(r.keys[from]), maskKey(r.keys[to]))
}

// Size 池大小，调用方用它约束单次请求的重试次数
func (r *Rotator) Size() int {
	return len(r.keys)
}

// Reset 回到第一个凭证
func (r *Rotator) Reset() {
	r.idx.Store(0)
}

func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
