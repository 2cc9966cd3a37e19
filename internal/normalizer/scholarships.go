package normalizer

import (
	"scholira/internal/model"
)

const (
	defaultProvider = "Official Provider"
	defaultAmount   = "See details"
	defaultDeadline = "Rolling"
	defaultLocation = "Global"
)

// Scholarships 依次查找 scholarships → results → data，第一个非空数组生效。
// 名称为空或非对象的元素会被丢弃。
func Scholarships(payload Payload) []model.Scholarship {
	items := firstArray(payload, "scholarships", "results", "data")
	out := make([]model.Scholarship, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := pickString(obj, "name", "title")
		if name == "" {
			continue
		}
		out = append(out, model.Scholarship{
			Name:           name,
			Provider:       pickStringOr(obj, defaultProvider, "provider", "organization", "sponsor"),
			Amount:         pickStringOr(obj, defaultAmount, "amount", "award", "value"),
			Deadline:       pickStringOr(obj, defaultDeadline, "deadline", "dueDate"),
			Description:    pickString(obj, "description", "summary"),
			Eligibility:    pickStrings(obj, "eligibility", "requirements"),
			Location:       pickStringOr(obj, defaultLocation, "location", "country", "region"),
			ApplicationURL: pickString(obj, "applicationUrl", "application_url", "url", "link"),
		})
	}
	return out
}

// SearchResult 组合奖学金、引用来源与原始文本兜底。
func SearchResult(payload Payload) model.SearchResult {
	res := model.SearchResult{
		Scholarships: Scholarships(payload),
		Sources:      Sources(payload),
	}
	if len(res.Scholarships) == 0 {
		res.RawText = RawText(payload)
	}
	return res
}
