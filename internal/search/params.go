package search

import (
	"strings"

	"scholira/internal/model"
)

const (
	anyValue           = "Any"
	defaultCourseQuery = "High demand skills"
)

// RecommendationParams 由资料生成推荐搜索参数，空字段使用默认值。
func RecommendationParams(p model.UserProfile) model.SearchParams {
	return model.SearchParams{
		OriginCountry: orDefault(p.OriginCountry, "India"),
		StudyLevel:    orDefault(p.StudyLevel, "Bachelor"),
		FieldOfStudy:  orDefault(p.TargetMajor, "Computer Science"),
		TargetRegion:  orDefault(p.TargetRegion, "Global"),
		GPA:           p.GPA,
		SAT:           p.SAT,
	}
}

// ResolveParams 将 "Any" 或空白的必填字段替换为资料推荐值，gpa/sat 缺省时取自资料。
func ResolveParams(params model.SearchParams, p model.UserProfile) model.SearchParams {
	rec := RecommendationParams(p)
	params.OriginCountry = resolveAny(params.OriginCountry, rec.OriginCountry)
	params.StudyLevel = resolveAny(params.StudyLevel, rec.StudyLevel)
	params.FieldOfStudy = resolveAny(params.FieldOfStudy, rec.FieldOfStudy)
	params.TargetRegion = resolveAny(params.TargetRegion, rec.TargetRegion)
	params.GPA = orDefault(params.GPA, rec.GPA)
	params.SAT = orDefault(params.SAT, rec.SAT)
	return params
}

// CourseQuery 推荐课程的查询词：目标专业与兴趣，均为空时使用通用查询。
func CourseQuery(p model.UserProfile) string {
	q := strings.TrimSpace(p.TargetMajor + " " + p.Interests)
	if q == "" {
		return defaultCourseQuery
	}
	return q
}

func resolveAny(v, fallback string) string {
	if strings.TrimSpace(v) == "" || v == anyValue {
		return fallback
	}
	return v
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
