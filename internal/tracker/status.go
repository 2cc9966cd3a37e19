// Package tracker 管理用户收藏并跟踪的奖学金。
//
// 状态图：
//
//	new ──► saved ◄──► applied
//	 │        ▲           ▲
//	 └──────► ignored ────┘
//
// 任意状态可以切换到其他状态，但 new 只在首次收藏时出现，之后不能回到 new。
package tracker

import (
	"errors"
	"fmt"

	"scholira/internal/model"
)

var (
	// ErrUnknownStatus 状态值无法识别。
	ErrUnknownStatus = errors.New("unknown tracked status")
	// ErrInvalidTransition 状态切换不被允许。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ParseStatus 将原始字符串转换为状态，未知值返回 ErrUnknownStatus。
func ParseStatus(s string) (model.TrackedScholarshipStatus, error) {
	st := model.TrackedScholarshipStatus(s)
	switch st {
	case model.TrackedStatusNew, model.TrackedStatusSaved, model.TrackedStatusApplied, model.TrackedStatusIgnored:
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
}

// IsTransitionAllowed 判断 from → to 是否允许。
func IsTransitionAllowed(from, to model.TrackedScholarshipStatus) bool {
	if from == to || to == model.TrackedStatusNew {
		return false
	}
	if _, err := ParseStatus(string(from)); err != nil {
		return false
	}
	_, err := ParseStatus(string(to))
	return err == nil
}
