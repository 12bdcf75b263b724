package stream

import (
	"encoding/json"
	"fmt"

	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
)

// 推流事件模型：每帧为 {"event": "...", "data": {...}}。
// 所有事件解码成带类型的载荷后走同一条分发路径写入看板；
// 载荷不合法属于 Fatal-Other，不做静默忽略。

// 事件名常量。
const (
	EventConnected = "connected"
	EventProgress  = "progress"
	EventComplete  = "complete"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// Envelope 单帧信封。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ConnectedPayload connected 事件载荷。
type ConnectedPayload struct {
	Message string `json:"message"`
}

// ProgressPayload progress 事件载荷。
type ProgressPayload struct {
	Status    string      `json:"status"`
	Progress  int         `json:"progress"`
	Step      client.Step `json:"step"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	LeadID    string      `json:"lead_id,omitempty"`
}

// CompletePayload complete 事件载荷。
type CompletePayload struct {
	Progress  int         `json:"progress"`
	Step      client.Step `json:"step"`
	AvatarURL string      `json:"avatar_url,omitempty"`
	LeadID    string      `json:"lead_id"`
}

// FailedPayload failed 事件载荷。
type FailedPayload struct {
	Progress int         `json:"progress"`
	Step     client.Step `json:"step"`
	Error    string      `json:"error"`
}

// CancelledPayload cancelled 事件载荷。
type CancelledPayload struct {
	Progress int         `json:"progress"`
	Step     client.Step `json:"step"`
}

// DecodeError 事件解码失败（信封损坏、未知事件或字段非法）。
type DecodeError struct {
	Event string
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("decode push event: %v", e.Cause)
	}
	return fmt.Sprintf("decode %s event: %v", e.Event, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Decode 将一帧原始消息解码为带类型的事件载荷。
// 返回值为 *ConnectedPayload / *ProgressPayload / *CompletePayload /
// *FailedPayload / *CancelledPayload 之一。
func Decode(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	switch env.Event {
	case EventConnected:
		var p ConnectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		return &p, nil
	case EventProgress:
		var p ProgressPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		if _, err := parseStatus(p.Status); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		if err := checkProgress(p.Progress); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		return &p, nil
	case EventComplete:
		var p CompletePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		return &p, nil
	case EventFailed:
		var p FailedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		return &p, nil
	case EventCancelled:
		var p CancelledPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, &DecodeError{Event: env.Event, Cause: err}
		}
		return &p, nil
	default:
		return nil, &DecodeError{Event: env.Event, Cause: fmt.Errorf("unknown event %q", env.Event)}
	}
}

// parseStatus 校验并转换线上状态字符串。
func parseStatus(s string) (jobs.Status, error) {
	switch jobs.Status(s) {
	case jobs.StatusPending, jobs.StatusActive, jobs.StatusComplete, jobs.StatusFailed, jobs.StatusCancelled:
		return jobs.Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// checkProgress 进度取值范围校验。
func checkProgress(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("progress %d out of range", p)
	}
	return nil
}
