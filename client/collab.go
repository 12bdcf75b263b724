package client

import "context"

// TokenProvider 会话/鉴权协作方接口。
// 说明：本组件不管理令牌生命周期，仅通过该接口取用；
// AccessToken 返回当前可用令牌，Refresh 强制换取新令牌。
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// BalanceAPI 余额/额度协作方接口，仅由完成回调触发。
type BalanceAPI interface {
	FetchBalance(ctx context.Context) error
}
