package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/ticketflow/types"
)

// encodingInfo 描述一个模型家族使用的 tiktoken 编码与上下文大小。
type encodingInfo struct {
	encoding  string
	maxTokens int
}

// 已知 OpenAI 模型家族。未列出的模型按 cl100k_base / 8192 处理。
var modelEncodings = map[string]encodingInfo{
	"gpt-4o":        {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":   {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4-turbo":   {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":         {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo": {encoding: "cl100k_base", maxTokens: 16385},
}

var fallbackEncoding = encodingInfo{encoding: "cl100k_base", maxTokens: 8192}

// TiktokenTokenizer 基于 tiktoken 的精确分词器。
// 编码数据在首次计数时惰性加载（可能触发下载）。
type TiktokenTokenizer struct {
	model   string
	info    encodingInfo
	enc     *tiktoken.Tiktoken
	once    sync.Once
	initErr error
}

// NewTiktokenTokenizer 为模型创建 tiktoken 分词器。
// 精确名与前缀均未命中时使用 cl100k_base 兜底。
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	info, ok := modelEncodings[model]
	if !ok {
		// 家族名互相嵌套（"gpt-4o-…" 同时是 "gpt-4" 的前缀扩展），
		// 取最长命中，避免 map 迭代顺序决定编码
		bestLen := 0
		for prefix, candidate := range modelEncodings {
			if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
				info, ok, bestLen = candidate, true, len(prefix)
			}
		}
	}
	if !ok {
		info = fallbackEncoding
	}

	return &TiktokenTokenizer{model: model, info: info}, nil
}

func (t *TiktokenTokenizer) load() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.info.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.info.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// CountMessages 按 chat 格式计数：每条消息计入内容、角色与
// <|start|>…<|end|> 框架开销，对话结尾再加收尾开销。
func (t *TiktokenTokenizer) CountMessages(messages []types.Message) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}

	total := conversationTail
	for _, msg := range messages {
		total += perMessageOverhead
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(string(msg.Role), nil, nil))
	}
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.info.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.info.encoding)
}

// RegisterOpenAITokenizers 把所有已知 OpenAI 模型的分词器注册进
// 全局注册表，通常在进程启动时调用一次。
func RegisterOpenAITokenizers() {
	for model := range modelEncodings {
		t, err := NewTiktokenTokenizer(model)
		if err != nil {
			continue
		}
		RegisterTokenizer(model, t)
	}
}
