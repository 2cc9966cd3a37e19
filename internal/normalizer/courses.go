package normalizer

import (
	"fmt"

	"scholira/internal/model"
)

const defaultCourseName = "Online Course"

// Courses 依次查找 courses → results → data。缺少 id 时以 "名称-下标" 生成，
// 保证同一输入顺序得到相同 id，且单个结果集内 id 唯一。
func Courses(payload Payload) model.CourseSearchResult {
	items := firstArray(payload, "courses", "results", "data")
	courses := make([]model.Course, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for idx, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := pickStringOr(obj, defaultCourseName, "name", "title")

		id := pickString(obj, "id")
		if id == "" {
			id = fmt.Sprintf("%s-%d", name, idx)
		}
		for {
			if _, dup := seen[id]; !dup {
				break
			}
			id = fmt.Sprintf("%s-%d", id, idx)
		}
		seen[id] = struct{}{}

		courses = append(courses, model.Course{
			ID:          id,
			Name:        name,
			Provider:    pickString(obj, "provider", "platform", "organization"),
			Subject:     pickString(obj, "subject", "category"),
			Level:       pickString(obj, "level", "difficulty"),
			Duration:    pickString(obj, "duration"),
			Cost:        pickString(obj, "cost", "price"),
			Description: pickString(obj, "description", "summary"),
			Skills:      pickStrings(obj, "skills"),
			Tags:        pickStrings(obj, "tags"),
			Link:        pickString(obj, "link", "url"),
		})
	}

	total, ok := pickInt(payload, "total", "count")
	if !ok {
		total = len(courses)
	}
	return model.CourseSearchResult{Courses: courses, Total: total}
}
