package client

// 以下类型与后端任务接口的 JSON 契约一一对应，字段命名保持 snake_case。

// Step 任务步骤进度。
type Step struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// JobSnapshot 服务端视角的单个任务快照（/active-jobs 返回项）。
type JobSnapshot struct {
	JobID     string `json:"job_id"`
	LeadID    string `json:"lead_id,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Step      Step   `json:"step"`
	StartedAt int64  `json:"started_at,omitempty"` // 毫秒时间戳
	Error     string `json:"error,omitempty"`
}

// ActiveJobsResp GET /active-jobs 响应体。
type ActiveJobsResp struct {
	ActiveCount int           `json:"active_count"`
	Jobs        []JobSnapshot `json:"jobs"`
}

// SubmitJobReq POST /jobs 请求体。
// Kind 取值如 profile_analysis、business_context。
type SubmitJobReq struct {
	LeadID   string `json:"lead_id"`
	Username string `json:"username,omitempty"`
	Kind     string `json:"kind"`
}

// SubmitJobResp POST /jobs 响应体。
type SubmitJobResp struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	ProgressURL string `json:"progress_url"`
}
