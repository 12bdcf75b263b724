package gormstore

import (
    "context"
    "errors"
    "time"

    "gorm.io/gorm"

    "github.com/mengeric/jobsync-client-go/jobs"
)

// 基于 GORM 的看板后端。看板生命周期仍是会话级的：
// 宿主传入什么库（如内存 sqlite）决定记录落在哪，合并语义不变。

// model 映射到数据库表。
type model struct {
    Key          string    `gorm:"primaryKey;size:64"`
    JobID        string    `gorm:"index;size:64"`
    LeadID       string    `gorm:"index;size:64"`
    Username     string    `gorm:"size:128"`
    AvatarURL    string    `gorm:"type:text"`
    Status       string    `gorm:"index;size:16"`
    Progress     int       `gorm:"default:0"`
    StepCurrent  int       `gorm:"default:0"`
    StepTotal    int       `gorm:"default:0"`
    StartedAt    time.Time `gorm:"index"`
    UpdatedAt    time.Time
    Optimistic   bool      `gorm:"index"`
    ErrorMessage string    `gorm:"type:text"`
}

// TableName 指定表名。
func (model) TableName() string { return "job_board" }

// Store 基于 GORM 的 Storage 实现。
type Store struct{ db *gorm.DB }

// New 创建 Store 并确保表结构存在。
func New(db *gorm.DB) (*Store, error) {
    if err := db.AutoMigrate(&model{}); err != nil {
        return nil, err
    }
    return &Store{db: db}, nil
}

// Put 实现 Storage.Put。
func (s *Store) Put(ctx context.Context, rec *jobs.Record) error {
    m := toModel(rec)
    return s.db.WithContext(ctx).Save(&m).Error
}

// Get 实现 Storage.Get。
func (s *Store) Get(ctx context.Context, key string) (*jobs.Record, error) {
    var m model
    if err := s.db.WithContext(ctx).Where("key = ?", key).First(&m).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, jobs.ErrNotFound
        }
        return nil, err
    }
    return fromModel(m), nil
}

// Delete 实现 Storage.Delete。
func (s *Store) Delete(ctx context.Context, key string) error {
    return s.db.WithContext(ctx).Where("key = ?", key).Delete(&model{}).Error
}

// List 实现 Storage.List。
func (s *Store) List(ctx context.Context) ([]jobs.Record, error) {
    var list []model
    if err := s.db.WithContext(ctx).Find(&list).Error; err != nil {
        return nil, err
    }
    out := make([]jobs.Record, 0, len(list))
    for _, m := range list { out = append(out, *fromModel(m)) }
    return out, nil
}

func toModel(r *jobs.Record) model {
    return model{
        Key: r.Key, JobID: r.ID, LeadID: r.LeadID, Username: r.Username, AvatarURL: r.AvatarURL,
        Status: string(r.Status), Progress: r.Progress, StepCurrent: r.Step.Current, StepTotal: r.Step.Total,
        StartedAt: r.StartedAt, UpdatedAt: r.UpdatedAt, Optimistic: r.Optimistic, ErrorMessage: r.ErrorMessage,
    }
}

func fromModel(m model) *jobs.Record {
    return &jobs.Record{
        Key: m.Key, ID: m.JobID, LeadID: m.LeadID, Username: m.Username, AvatarURL: m.AvatarURL,
        Status: jobs.Status(m.Status), Progress: m.Progress, Step: jobs.Step{Current: m.StepCurrent, Total: m.StepTotal},
        StartedAt: m.StartedAt, UpdatedAt: m.UpdatedAt, Optimistic: m.Optimistic, ErrorMessage: m.ErrorMessage,
    }
}
