package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ticketflow/types"
)

// stubTokenizer 注册表测试用的最小实现
type stubTokenizer struct {
	name string
}

func (s *stubTokenizer) CountTokens(text string) (int, error) { return len(text), nil }
func (s *stubTokenizer) CountMessages(msgs []types.Message) (int, error) {
	return len(msgs), nil
}
func (s *stubTokenizer) MaxTokens() int { return 100 }
func (s *stubTokenizer) Name() string   { return s.name }

func TestRegistry(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		stub := &stubTokenizer{name: "stub-exact"}
		RegisterTokenizer("registry-exact-model", stub)

		got, err := GetTokenizer("registry-exact-model")
		require.NoError(t, err)
		assert.Equal(t, "stub-exact", got.Name())
	})

	t.Run("prefix match", func(t *testing.T) {
		stub := &stubTokenizer{name: "stub-prefix"}
		RegisterTokenizer("registry-prefix", stub)

		got, err := GetTokenizer("registry-prefix-2024-snapshot")
		require.NoError(t, err)
		assert.Equal(t, "stub-prefix", got.Name())
	})

	t.Run("nested prefixes pick the longest", func(t *testing.T) {
		RegisterTokenizer("registry-family", &stubTokenizer{name: "stub-family"})
		RegisterTokenizer("registry-family-pro", &stubTokenizer{name: "stub-family-pro"})

		// 两个家族名都是派生名的前缀，命中必须稳定落在更长的那个，
		// 不随 map 迭代顺序漂移
		for i := 0; i < 100; i++ {
			got, err := GetTokenizer("registry-family-pro-2024-snapshot")
			require.NoError(t, err)
			require.Equal(t, "stub-family-pro", got.Name())
		}
	})

	t.Run("unknown model errors", func(t *testing.T) {
		_, err := GetTokenizer("registry-nobody-registered-this")
		assert.Error(t, err)
	})

	t.Run("fallback to estimator", func(t *testing.T) {
		got := GetTokenizerOrEstimator("registry-nobody-registered-this")
		assert.Equal(t, "estimator", got.Name())
	})
}

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any-model", 0)

	tests := []struct {
		name string
		text string
		want int
	}{
		{"空文本", "", 0},
		{"纯 ASCII 按 4 字一 token", "hello world!", 3},
		{"纯中文按 1.5 字一 token", "你好", 1},
		{"非空文本至少一个 token", "a", 1},
		{"中英混排", "你好世界 hello", 4}, // 4/1.5 + 6/4 = 2.66+1.5 = 4.16 → 4
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimator_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("any-model", 0)

	msgs := []types.Message{
		types.NewUserMessage("hello world!"), // 3 tokens
		types.NewUserMessage("你好"),           // 1 token
	}

	// 每条消息 +4 框架开销，末尾 +3
	got, err := e.CountMessages(msgs)
	require.NoError(t, err)
	assert.Equal(t, 3+4+1+4+3, got)
}

func TestEstimator_Defaults(t *testing.T) {
	assert.Equal(t, 4096, NewEstimatorTokenizer("m", 0).MaxTokens())
	assert.Equal(t, 8192, NewEstimatorTokenizer("m", 8192).MaxTokens())
	assert.Equal(t, "estimator", NewEstimatorTokenizer("m", 0).Name())
}

func TestIsCJK(t *testing.T) {
	assert.True(t, isCJK('中'))
	assert.True(t, isCJK('。'))
	assert.False(t, isCJK('a'))
	assert.False(t, isCJK('1'))
	assert.False(t, isCJK(' '))
}

func TestTiktoken_EncodingSelection(t *testing.T) {
	tests := []struct {
		model    string
		wantName string
		wantMax  int
	}{
		{"gpt-4o", "tiktoken[o200k_base]", 128000},
		{"gpt-4o-2024-08-06", "tiktoken[o200k_base]", 128000},
		{"gpt-4-0613", "tiktoken[cl100k_base]", 8192},
		{"gpt-3.5-turbo", "tiktoken[cl100k_base]", 16385},
		{"totally-unknown-model", "tiktoken[cl100k_base]", 8192},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tok, err := NewTiktokenTokenizer(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, tok.Name())
			assert.Equal(t, tt.wantMax, tok.MaxTokens())
		})
	}
}

func TestTiktoken_DerivedNameResolution(t *testing.T) {
	// "gpt-4o-2024-08-06" 同时匹配 "gpt-4o" 与 "gpt-4" 两个家族名，
	// 每次构造都必须命中更长的 "gpt-4o"（o200k_base/128000）
	for i := 0; i < 100; i++ {
		tok, err := NewTiktokenTokenizer("gpt-4o-2024-08-06")
		require.NoError(t, err)
		require.Equal(t, "tiktoken[o200k_base]", tok.Name())
		require.Equal(t, 128000, tok.MaxTokens())
	}
}
