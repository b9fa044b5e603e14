package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/JackeyWin/stock_go_server/internal/pkg/search"
)

// Engine 股票分析能力，一次性全面分析和盘中快评两种
type Engine interface {
	Analyze(ctx context.Context, stockCode string) (string, error)
	Intraday(ctx context.Context, stockCode string) (string, error)
}

// Searcher 联网搜索，engine 只用到这一个方法
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Response, error)
}

// Chatter 大模型对话
type Chatter interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// AI 基于大模型 + 联网搜索的分析实现。
// 搜索失败只降级不中断，没有资讯上下文时模型照样给结论。
type AI struct {
	chatter  Chatter
	searcher Searcher
}

func NewAI(chatter Chatter, searcher Searcher) *AI {
	return &AI{chatter: chatter, searcher: searcher}
}

// Analyze 全面分析：基本面、技术面、资金面、消息面
func (a *AI) Analyze(ctx context.Context, stockCode string) (string, error) {
	news := a.gatherNews(ctx, stockCode)
	prompt := buildAnalysisPrompt(stockCode, news)

	result, err := a.chatter.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("分析 %s 失败: %w", stockCode, err)
	}
	return result, nil
}

// Intraday 盘中快评，盯盘任务每次执行调用
func (a *AI) Intraday(ctx context.Context, stockCode string) (string, error) {
	news := a.gatherNews(ctx, stockCode)
	prompt := buildIntradayPrompt(stockCode, news)

	result, err := a.chatter.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("盘中快评 %s 失败: %w", stockCode, err)
	}
	return result, nil
}

func (a *AI) gatherNews(ctx context.Context, stockCode string) string {
	if a.searcher == nil {
		return ""
	}

	resp, err := a.searcher.Search(ctx, stockCode+" 股票 最新消息")
	if err != nil {
		log.Printf("Search for %s failed, analyzing without news context: %v", stockCode, err)
		return ""
	}

	var sb strings.Builder
	if resp.Answer != "" {
		sb.WriteString(resp.Answer)
		sb.WriteString("\n")
	}
	for _, r := range resp.Results {
		sb.WriteString("- ")
		sb.WriteString(r.Title)
		sb.WriteString(": ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildAnalysisPrompt(stockCode, news string) string {
	var sb strings.Builder
	sb.WriteString("你是一位专业的A股分析师。请对股票 ")
	sb.WriteString(stockCode)
	sb.WriteString(" 进行全面分析，涵盖基本面、技术面、资金面和消息面，")
	sb.WriteString("最后给出明确的操作建议（买入/持有/卖出）和理由。\n")
	appendNews(&sb, news)
	return sb.String()
}

func buildIntradayPrompt(stockCode, news string) string {
	var sb strings.Builder
	sb.WriteString("你是一位专业的A股盯盘助手。请对股票 ")
	sb.WriteString(stockCode)
	sb.WriteString(" 的盘中表现给出简短快评：当前走势判断、关键价位提醒、")
	sb.WriteString("以及是否需要调仓。回答控制在200字以内。\n")
	appendNews(&sb, news)
	return sb.String()
}

func appendNews(sb *strings.Builder, news string) {
	if news == "" {
		return
	}
	sb.WriteString("\n以下是最新相关资讯，供参考：\n")
	sb.WriteString(news)
}
