package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/ticketflow/types"
)

// Tokenizer 统一的 token 计数接口。
type Tokenizer interface {
	// CountTokens 计算单段文本的 token 数
	CountTokens(text string) (int, error)

	// CountMessages 计算整组消息的 token 数，含每条消息的
	// 角色标记与分隔符开销
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 模型的最大上下文长度
	MaxTokens() int

	// Name 分词器名称
	Name() string
}

// 按模型名的全局注册表。
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Tokenizer)
)

// RegisterTokenizer 注册某个模型的分词器，重复注册以后者为准。
func RegisterTokenizer(model string, t Tokenizer) {
	registryMu.Lock()
	registry[model] = t
	registryMu.Unlock()
}

// GetTokenizer 查找模型的分词器。精确名优先，其次取最长前缀命中
// （"gpt-4o-2024-xx" 这类派生名命中 "gpt-4o" 而不是 "gpt-4"）。
func GetTokenizer(model string) (Tokenizer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if t, ok := registry[model]; ok {
		return t, nil
	}

	var (
		best    Tokenizer
		bestLen int
	)
	for prefix, t := range registry {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetTokenizerOrEstimator 查找模型分词器，未注册时退回通用估算器，
// 调用方永远能拿到可用实例。
func GetTokenizerOrEstimator(model string) Tokenizer {
	if t, err := GetTokenizer(model); err == nil {
		return t
	}
	return NewEstimatorTokenizer(model, 0)
}
