package model

// Scholarship 表示一条归一化后的奖学金记录。
// - Name: 必填，归一化后为空的记录会被丢弃
// - Amount/Deadline: 自由文本，后端格式不固定
// - Eligibility: 有序的简短条件，永不为 nil
type Scholarship struct {
	Name           string   `json:"name"`
	Provider       string   `json:"provider"`
	Amount         string   `json:"amount"`
	Deadline       string   `json:"deadline"`
	Description    string   `json:"description"`
	Eligibility    []string `json:"eligibility"`
	Location       string   `json:"location"`
	ApplicationURL string   `json:"applicationUrl,omitempty"`
}

// GroundingSource 表示搜索后端返回的引用来源。
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// SearchResult 为奖学金搜索结果，RawText 仅在结构化抽取为空时存在。
type SearchResult struct {
	Scholarships []Scholarship     `json:"scholarships"`
	RawText      string            `json:"rawText,omitempty"`
	Sources      []GroundingSource `json:"sources"`
}

// Course 表示一门在线课程，ID 在单次结果集内唯一。
type Course struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	Subject     string   `json:"subject"`
	Level       string   `json:"level"`
	Duration    string   `json:"duration"`
	Cost        string   `json:"cost"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Tags        []string `json:"tags"`
	Link        string   `json:"link,omitempty"`
}

// CourseSearchResult 为课程搜索结果，后端未提供 total 时取课程数量。
type CourseSearchResult struct {
	Courses []Course `json:"courses"`
	Total   int      `json:"total"`
}

// SearchParams 奖学金搜索参数。
type SearchParams struct {
	OriginCountry string `json:"originCountry" validate:"required"`
	StudyLevel    string `json:"studyLevel" validate:"required"`
	FieldOfStudy  string `json:"fieldOfStudy" validate:"required"`
	TargetRegion  string `json:"targetRegion" validate:"required"`
	GPA           string `json:"gpa,omitempty"`
	SAT           string `json:"sat,omitempty"`
	IELTS         string `json:"ielts,omitempty"`
	TOEFL         string `json:"toefl,omitempty"`
}

// CourseSearchParams 课程搜索参数。
type CourseSearchParams struct {
	Query    string `json:"query" validate:"required,notblank"`
	Subject  string `json:"subject,omitempty"`
	Level    string `json:"level,omitempty"`
	Platform string `json:"platform,omitempty"`
}
