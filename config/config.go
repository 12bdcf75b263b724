package config

// Config 组件运行所需的完整配置（可选，宿主也可以直接用 With... 可选项）。
// 时间类字段以秒/毫秒为单位，便于 YAML 书写。
type Config struct {
    ServerBase string // 任务后端地址，例如 https://api.example.com/v1
    WSBase     string // 进度流地址，留空由 ServerBase 推导

    SlowPollSeconds int // 慢速轮询间隔，默认 10
    FastPollSeconds int // 批量同步间隔，默认 5
    FastAt          int // 批量同步阈值，默认 4

    WatchdogSeconds int // 推流看门狗窗口，默认 60
    ResumeMax       int // 推流续接上限，默认 2
    OrphanSeconds   int // 孤儿提升窗口，默认 30
    DismissSeconds  int // 终态记录展示期，默认 10

    BackoffBaseMS    int // 退避基数，默认 2000
    BackoffMaxMS     int // 退避单次上限，默认 30000
    ServerAttempts   int // 服务端错误尝试上限，默认 3
    WarmupSeconds    int // not_found 宽限窗口，默认 10
}
