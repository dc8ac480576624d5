package dialogue

import (
	"regexp"
	"strings"
)

// 标签协议常量
// 标签名与终止标记大小写不敏感，但字面内容固定，属于与后端输出约定的内部契约。
const (
	// DefaultTerminalMarker 终止标记：出现即表示对话达到可下单的终态
	DefaultTerminalMarker = "[[ORDER_COMPLETED]]"

	// 默认提取标签名
	DefaultSummaryTag     = "su"
	DefaultDescriptionTag = "de"
	DefaultCategoryTag    = "ca"
)

// Fields 从模型原始输出中提取的结构化字段
// 缺失的标签对应 nil，而不是空串，便于下游区分"未给出"与"给出空值"。
type Fields struct {
	Summary     *string `json:"summary"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// Empty 判断是否所有字段都缺失
func (f Fields) Empty() bool {
	return f.Summary == nil && f.Description == nil && f.Category == nil
}

// Analyzer 对模型输出文本的纯函数分析接口
// 引擎其余部分不直接接触原始文本，终态判定、字段提取与清洗都经由它完成。
type Analyzer interface {
	// IsTerminal 判断文本是否包含终止标记（大小写不敏感的固定字面量）
	IsTerminal(text string) bool

	// ExtractFields 提取 <su>/<de>/<ca> 标签块的内容
	// 非贪婪、大小写不敏感、跨行匹配，每个标签取第一次出现；缺失返回 nil 字段。
	// 必须在 Sanitize 之前调用：Sanitize 是破坏性的。
	ExtractFields(text string) Fields

	// Sanitize 移除终止标记与完整的标签块并修剪首尾空白，产出可展示文本
	Sanitize(text string) string
}

// TagAnalyzer 基于固定标签协议的 Analyzer 实现
// 正则在构造时编译一次。
type TagAnalyzer struct {
	marker        string
	markerPattern *regexp.Regexp
	summaryRe     *regexp.Regexp
	descriptionRe *regexp.Regexp
	categoryRe    *regexp.Regexp
}

// NewTagAnalyzer 创建使用默认协议的分析器
func NewTagAnalyzer() *TagAnalyzer {
	return NewTagAnalyzerWithProtocol(DefaultTerminalMarker, DefaultSummaryTag, DefaultDescriptionTag, DefaultCategoryTag)
}

// NewTagAnalyzerWithProtocol 创建自定义标记与标签名的分析器
// 标签名为空时回退到默认值。
func NewTagAnalyzerWithProtocol(marker, summaryTag, descriptionTag, categoryTag string) *TagAnalyzer {
	if marker == "" {
		marker = DefaultTerminalMarker
	}
	if summaryTag == "" {
		summaryTag = DefaultSummaryTag
	}
	if descriptionTag == "" {
		descriptionTag = DefaultDescriptionTag
	}
	if categoryTag == "" {
		categoryTag = DefaultCategoryTag
	}

	return &TagAnalyzer{
		marker:        marker,
		markerPattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker)),
		summaryRe:     compileTagPattern(summaryTag),
		descriptionRe: compileTagPattern(descriptionTag),
		categoryRe:    compileTagPattern(categoryTag),
	}
}

// compileTagPattern 编译 <tag>…</tag> 的非贪婪跨行匹配
func compileTagPattern(tag string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?is)<` + quoted + `>(.*?)</` + quoted + `>`)
}

// IsTerminal 实现 Analyzer.IsTerminal
func (a *TagAnalyzer) IsTerminal(text string) bool {
	return a.markerPattern.MatchString(text)
}

// ExtractFields 实现 Analyzer.ExtractFields
func (a *TagAnalyzer) ExtractFields(text string) Fields {
	return Fields{
		Summary:     firstMatch(a.summaryRe, text),
		Description: firstMatch(a.descriptionRe, text),
		Category:    firstMatch(a.categoryRe, text),
	}
}

// firstMatch 返回第一个捕获组的内容，未命中返回 nil
func firstMatch(re *regexp.Regexp, text string) *string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	value := strings.TrimSpace(m[1])
	return &value
}

// Sanitize 实现 Analyzer.Sanitize
func (a *TagAnalyzer) Sanitize(text string) string {
	out := a.markerPattern.ReplaceAllString(text, "")
	out = a.summaryRe.ReplaceAllString(out, "")
	out = a.descriptionRe.ReplaceAllString(out, "")
	out = a.categoryRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
