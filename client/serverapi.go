package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mengeric/jobsync-client-go/logging"
)

// ServerAPI 定义与任务后端的交互接口，便于 gomock 打桩。
// 功能：封装 /active-jobs 批量查询与 /jobs 任务提交。
type ServerAPI interface {
	ListActiveJobs(ctx context.Context, base string) (ActiveJobsResp, error)
	SubmitJob(ctx context.Context, base string, req SubmitJobReq) (SubmitJobResp, error)
}

// httpServerAPI 实现 ServerAPI。
type httpServerAPI struct {
	hc *http.Client
	tp TokenProvider
}

// NewHTTPServerAPI 构造 HTTP 实现。
// 参数：tp 可为 nil，表示无需鉴权（测试场景）。
func NewHTTPServerAPI(tp TokenProvider) ServerAPI {
	return &httpServerAPI{hc: &http.Client{Timeout: 8 * time.Second}, tp: tp}
}

// ListActiveJobs 拉取当前活跃任务全集。
func (h *httpServerAPI) ListActiveJobs(ctx context.Context, base string) (ActiveJobsResp, error) {
	var out ActiveJobsResp
	if err := h.do(ctx, http.MethodGet, base+"/active-jobs", nil, &out); err != nil {
		return ActiveJobsResp{}, err
	}
	return out, nil
}

// SubmitJob 提交新任务。
// 返回：服务端分配的 job_id 与进度流地址。
func (h *httpServerAPI) SubmitJob(ctx context.Context, base string, req SubmitJobReq) (SubmitJobResp, error) {
	var out SubmitJobResp
	if err := h.do(ctx, http.MethodPost, base+"/jobs", req, &out); err != nil {
		return SubmitJobResp{}, err
	}
	return out, nil
}

// errBody 服务端错误响应体。
type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do 执行请求并解码 JSON；401 时刷新令牌重试一次。
func (h *httpServerAPI) do(ctx context.Context, method, url string, body, out any) error {
	err := h.once(ctx, method, url, body, out, false)
	if err != nil && IsUnauthorized(err) && h.tp != nil {
		logging.L().Debugf(ctx, "token rejected, refreshing: %s %s", method, url)
		return h.once(ctx, method, url, body, out, true)
	}
	return err
}

// once 单次请求。refresh 为 true 时先强制换取新令牌。
func (h *httpServerAPI) once(ctx context.Context, method, url string, body, out any, refresh bool) error {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.tp != nil {
		var tok string
		if refresh {
			tok, err = h.tp.Refresh(ctx)
		} else {
			tok, err = h.tp.AccessToken(ctx)
		}
		if err != nil {
			return fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(res.Body)
		var eb errBody
		_ = json.Unmarshal(b, &eb)
		if eb.Message == "" {
			eb.Message = string(b)
		}
		return &APIError{Status: res.StatusCode, Code: eb.Code, Message: eb.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
