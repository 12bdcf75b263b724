package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/logging"
)

// Provider 缓存型令牌提供器：包装宿主的会话协作方，
// 缓存当前可用令牌，仅在被拒绝或显式要求时换取新令牌。
// 本组件不管理令牌生命周期，只做取用与缓存。
type Provider struct {
	inner   client.TokenProvider
	current atomic.Value // string
	mu      sync.Mutex   // 串行化 Refresh，避免并发重复刷新
}

// New 构造。inner 为宿主会话提供方，不可为 nil。
func New(inner client.TokenProvider) *Provider {
	return &Provider{inner: inner}
}

// AccessToken 返回缓存令牌；缓存为空时向协作方取一次。
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	if v := p.current.Load(); v != nil {
		if tok := v.(string); tok != "" {
			return tok, nil
		}
	}
	tok, err := p.inner.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	p.current.Store(tok)
	return tok, nil
}

// Refresh 强制换取新令牌并更新缓存。
// 并发调用被串行化：后到者直接复用先到者刷新的结果。
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	before := ""
	if v := p.current.Load(); v != nil {
		before = v.(string)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if v := p.current.Load(); v != nil {
		if cur := v.(string); cur != "" && cur != before {
			return cur, nil
		}
	}
	tok, err := p.inner.Refresh(ctx)
	if err != nil {
		logging.L().Warnf(ctx, "token refresh failed: %v", err)
		return "", err
	}
	p.current.Store(tok)
	return tok, nil
}
