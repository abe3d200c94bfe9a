// Package ai 封装外部文本生成接口，提供氛围分析、话题建议和情书三项功能。
// 失败不会以错误返回，一律折叠为固定的提示文案。
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loveroom/internal/metrics"
	"loveroom/internal/models"

	"github.com/rs/zerolog/log"
)

// 固定的提示文案。
const (
	MsgVibeNoKey     = "AI服务不可用 (缺少 Key)"
	MsgNoKey         = "AI服务不可用"
	MsgNotEnoughChat = "聊天记录太少啦，多聊几句再来找我吧！"
	MsgVibeEmpty     = "暂时无法分析氛围。"
	MsgVibeFailed    = "哎呀，我有点晕，稍后再试吧！"
	MsgTopicEmpty    = "今天发生了什么让你开心的事吗？"
	MsgTopicFailed   = "可以说说你最喜欢我们共同的哪个回忆吗？"
	MsgNoteEmpty     = "我爱你！"
	MsgNoteFailed    = "想你了！"
)

// HistoryWindow 是氛围分析提示词中包含的非系统消息条数。
const HistoryWindow = 20

const vibePrompt = `You are a relationship expert and a friendly AI companion for a couple.
Analyze the following recent chat history between two people.
Give a short, fun, and warm summary of their "vibe" or current mood in Chinese (Simplified).
Keep it under 50 words. Be encouraging and cute.

Chat History:
%s`

const topicPrompt = "Suggest one fun, deep, or romantic conversation starter question for a couple to ask each other right now. Output only the question in Chinese (Simplified)."

const notePrompt = "Write a short, %s note from %s to %s in Chinese (Simplified). Max 2 sentences."

// Generator 是外部生成接口：输入提示词，输出纯文本。
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Advisor 把聊天状态组装成提示词。gen 为 nil 表示未配置密钥，所有调用都不会发请求。
type Advisor struct {
	gen     Generator
	model   string
	timeout time.Duration
}

func NewAdvisor(gen Generator, model string, timeout time.Duration) *Advisor {
	return &Advisor{gen: gen, model: model, timeout: timeout}
}

// Available 报告是否配置了密钥。
func (a *Advisor) Available() bool { return a.gen != nil }

// FormatHistory 把最近 HistoryWindow 条非系统消息渲染为 "昵称: 内容" 行。
func FormatHistory(msgs []models.Message) string {
	lines := make([]string, 0, HistoryWindow)
	for _, m := range msgs {
		if m.Type == models.MessageSystem {
			continue
		}
		lines = append(lines, m.SenderName+": "+m.Content)
	}
	if len(lines) > HistoryWindow {
		lines = lines[len(lines)-HistoryWindow:]
	}
	return strings.Join(lines, "\n")
}

func (a *Advisor) AnalyzeVibe(ctx context.Context, msgs []models.Message) string {
	if !a.Available() {
		metrics.AIRequests.WithLabelValues("vibe", "no_key").Inc()
		return MsgVibeNoKey
	}
	history := FormatHistory(msgs)
	if history == "" {
		metrics.AIRequests.WithLabelValues("vibe", "skipped").Inc()
		return MsgNotEnoughChat
	}
	return a.ask(ctx, "vibe", fmt.Sprintf(vibePrompt, history), MsgVibeEmpty, MsgVibeFailed)
}

func (a *Advisor) SuggestTopic(ctx context.Context) string {
	if !a.Available() {
		metrics.AIRequests.WithLabelValues("topic", "no_key").Inc()
		return MsgNoKey
	}
	return a.ask(ctx, "topic", topicPrompt, MsgTopicEmpty, MsgTopicFailed)
}

// LoveNote 以 tone 语气写一段 sender 给 receiver 的短句。
func (a *Advisor) LoveNote(ctx context.Context, sender, receiver, tone string) string {
	if !a.Available() {
		metrics.AIRequests.WithLabelValues("note", "no_key").Inc()
		return MsgNoKey
	}
	return a.ask(ctx, "note", fmt.Sprintf(notePrompt, tone, sender, receiver), MsgNoteEmpty, MsgNoteFailed)
}

// ask 只在返回文本为空串时使用 onEmpty，其余原样返回。
func (a *Advisor) ask(ctx context.Context, kind, prompt, onEmpty, onFail string) string {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	text, err := a.gen.Generate(ctx, a.model, prompt)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("ai generate")
		metrics.AIRequests.WithLabelValues(kind, "error").Inc()
		return onFail
	}
	if text == "" {
		metrics.AIRequests.WithLabelValues(kind, "empty").Inc()
		return onEmpty
	}
	metrics.AIRequests.WithLabelValues(kind, "ok").Inc()
	return text
}
