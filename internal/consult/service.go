// Package consult 实现 AI 留学咨询对话：扁平的有序消息记录，加上一次上游调用。
package consult

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"scholira/internal/model"
	"scholira/internal/upstream"
)

// OfflineReply 未配置咨询接口时的固定回复。
const OfflineReply = "I am your Scholira Consultant. Currently, my live API connection is being updated, but I can help you review your saved profile locally!"

// UnparsedReply 上游回复清洗后为空时的提示。
const UnparsedReply = "I could not parse the response. Please try rephrasing your question."

// ErrEmptyMessage 用户消息为空白。
var ErrEmptyMessage = errors.New("message is empty")

// Transcript 抽象消息记录的持久化，storage.Store 满足该接口。
type Transcript interface {
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(ctx context.Context) ([]model.ChatMessage, error)
	ClearMessages(ctx context.Context) error
}

// Consulter 抽象咨询接口调用。
type Consulter interface {
	Consult(ctx context.Context, endpoint string, req upstream.ConsultRequest) (string, error)
}

// ProfileSource 提供当前用户资料。
type ProfileSource interface {
	Profile() model.UserProfile
}

// Service 维护对话记录并转发给咨询接口。
type Service struct {
	transcript Transcript
	consulter  Consulter
	profiles   ProfileSource
	endpoint   string
	logger     *log.Logger
	now        func() time.Time
}

// NewService 创建 Service，endpoint 为空时使用离线回复。
func NewService(t Transcript, c Consulter, p ProfileSource, endpoint string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[consult] ", log.LstdFlags)
	}
	return &Service{
		transcript: t,
		consulter:  c,
		profiles:   p,
		endpoint:   endpoint,
		logger:     logger,
		now:        time.Now,
	}
}

// Send 追加用户消息，请求回复并追加为 model 消息。上游失败时用户消息保留在记录中。
func (s *Service) Send(ctx context.Context, text string) (*model.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	userMsg := &model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      model.ChatRoleUser,
		Content:   text,
		Timestamp: s.now(),
	}
	if err := s.transcript.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	reply := OfflineReply
	if s.endpoint != "" && s.consulter != nil {
		history, err := s.transcript.ListMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("load transcript: %w", err)
		}
		req := upstream.ConsultRequest{Messages: make([]upstream.ConsultMessage, 0, len(history))}
		for _, m := range history {
			req.Messages = append(req.Messages, upstream.ConsultMessage{Role: upstreamRole(m.Role), Content: m.Content})
		}
		if s.profiles != nil {
			req.UserProfile = s.profiles.Profile()
		}

		reply, err = s.consulter.Consult(ctx, s.endpoint, req)
		if err != nil {
			s.logger.Printf("consult failed after %d messages: %v", len(history), err)
			return nil, err
		}
		reply = SanitizeReply(reply)
		if reply == "" {
			reply = UnparsedReply
		}
	}

	ts := s.now()
	// 回复必须排在用户消息之后。
	if !ts.After(userMsg.Timestamp) {
		ts = userMsg.Timestamp.Add(time.Millisecond)
	}
	modelMsg := &model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      model.ChatRoleModel,
		Content:   reply,
		Timestamp: ts,
	}
	if err := s.transcript.AppendMessage(ctx, modelMsg); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	return modelMsg, nil
}

// upstreamRole 咨询接口使用 user/assistant 角色，本地记录中的 model 需要转换。
func upstreamRole(r model.ChatRole) string {
	if r == model.ChatRoleModel {
		return "assistant"
	}
	return string(r)
}

// History 返回按时间排序的完整对话。
func (s *Service) History(ctx context.Context) ([]model.ChatMessage, error) {
	msgs, err := s.transcript.ListMessages(ctx)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return msgs, nil
}

// Clear 清空对话。
func (s *Service) Clear(ctx context.Context) error {
	if err := s.transcript.ClearMessages(ctx); err != nil {
		return err
	}
	s.logger.Printf("transcript cleared")
	return nil
}
