package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile 表示本地持久化的用户资料，所有字段在存储中均可缺省。
type UserProfile struct {
	FullName      string `json:"fullName"`
	OriginCountry string `json:"originCountry"`
	TargetMajor   string `json:"targetMajor"`
	TargetRegion  string `json:"targetRegion"`
	StudyLevel    string `json:"studyLevel"`
	GPA           string `json:"gpa"`
	SAT           string `json:"sat"`
	Interests     string `json:"interests"`
	Achievements  string `json:"achievements"`
}

// ScholarshipFilters 保存的奖学金筛选条件，字段与 SearchParams 对应。
type ScholarshipFilters struct {
	OriginCountry string `json:"originCountry"`
	StudyLevel    string `json:"studyLevel"`
	FieldOfStudy  string `json:"fieldOfStudy"`
	TargetRegion  string `json:"targetRegion"`
	GPA           string `json:"gpa"`
	SAT           string `json:"sat"`
	IELTS         string `json:"ielts"`
	TOEFL         string `json:"toefl"`
}

// Params 转换为搜索参数。
func (f ScholarshipFilters) Params() SearchParams {
	return SearchParams{
		OriginCountry: f.OriginCountry,
		StudyLevel:    f.StudyLevel,
		FieldOfStudy:  f.FieldOfStudy,
		TargetRegion:  f.TargetRegion,
		GPA:           f.GPA,
		SAT:           f.SAT,
		IELTS:         f.IELTS,
		TOEFL:         f.TOEFL,
	}
}

// Setting 为键值存储中的一条记录，Value 保存原始 JSON。
type Setting struct {
	Key       string         `gorm:"primaryKey;column:setting_key" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TrackedScholarshipStatus 收藏奖学金的跟踪状态。
type TrackedScholarshipStatus string

const (
	TrackedStatusNew     TrackedScholarshipStatus = "new"
	TrackedStatusSaved   TrackedScholarshipStatus = "saved"
	TrackedStatusApplied TrackedScholarshipStatus = "applied"
	TrackedStatusIgnored TrackedScholarshipStatus = "ignored"
)

// TrackedScholarship 表示用户收藏并跟踪的奖学金。
type TrackedScholarship struct {
	ID             string                      `gorm:"primaryKey" json:"id"`
	Name           string                      `json:"name"`
	Provider       string                      `json:"provider"`
	Amount         string                      `json:"amount"`
	Deadline       string                      `json:"deadline"`
	Description    string                      `json:"description"`
	Eligibility    datatypes.JSONSlice[string] `json:"eligibility"`
	Location       string                      `json:"location"`
	ApplicationURL string                      `json:"applicationUrl,omitempty"`
	Status         TrackedScholarshipStatus    `gorm:"index" json:"status"`
	MatchScore     *int                        `json:"matchScore,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// ChatRole 聊天消息角色。
type ChatRole string

const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleModel ChatRole = "model"
)

// ChatMessage 表示咨询对话中的一条消息，按时间戳顺序组成扁平记录。
type ChatMessage struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// IsComplete 当姓名、来源国家、目标专业与学习阶段均非空时资料视为完整。
func (p UserProfile) IsComplete() bool {
	return p.FullName != "" && p.OriginCountry != "" && p.TargetMajor != "" && p.StudyLevel != ""
}
