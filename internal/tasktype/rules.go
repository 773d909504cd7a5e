package tasktype

import (
	"fmt"
	"regexp"
	"strings"
)

// Vocabulary is a set of phrases that identify a rule.
//
// Words are ASCII terms matched on word boundaries. When Inflect is set, the
// common English suffixes (s, es, d, ed, ing) are accepted as well. Terms are
// matched as plain substrings, which is how Japanese vocabulary is matched
// since it has no word boundaries. Patterns are raw regular expressions.
type Vocabulary struct {
	Words    []string
	Inflect  bool
	Terms    []string
	Patterns []string
}

// IsEmpty reports whether the vocabulary has no entries.
func (v Vocabulary) IsEmpty() bool {
	return len(v.Words) == 0 && len(v.Terms) == 0 && len(v.Patterns) == 0
}

// compile turns the vocabulary into a single regular expression.
// Input is normalized (width folded, case folded) before matching, so all
// vocabulary is lower case.
func (v Vocabulary) compile() (*regexp.Regexp, error) {
	if v.IsEmpty() {
		return nil, nil
	}

	alternatives := make([]string, 0, 3)

	if len(v.Words) > 0 {
		words := make([]string, 0, len(v.Words))
		for _, w := range v.Words {
			words = append(words, regexp.QuoteMeta(strings.ToLower(w)))
		}
		suffix := ""
		if v.Inflect {
			suffix = `(?:s|es|d|ed|ing)?`
		}
		alternatives = append(alternatives, `\b(?:`+strings.Join(words, "|")+`)`+suffix+`\b`)
	}

	if len(v.Terms) > 0 {
		terms := make([]string, 0, len(v.Terms))
		for _, t := range v.Terms {
			terms = append(terms, regexp.QuoteMeta(strings.ToLower(t)))
		}
		alternatives = append(alternatives, `(?:`+strings.Join(terms, "|")+`)`)
	}

	for _, p := range v.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		alternatives = append(alternatives, `(?:`+p+`)`)
	}

	return regexp.Compile(strings.Join(alternatives, "|"))
}

// Rule maps a vocabulary to a task type. A rule matches when the prompt
// contains any Match entry and no Unless entry.
type Rule struct {
	Name   string
	Type   Type
	Match  Vocabulary
	Unless Vocabulary
}

// compiledRule is a Rule with its vocabularies compiled.
type compiledRule struct {
	Rule
	match  *regexp.Regexp
	unless *regexp.Regexp
}

func (r *compiledRule) matches(normalized string) bool {
	if r.match == nil || !r.match.MatchString(normalized) {
		return false
	}
	if r.unless != nil && r.unless.MatchString(normalized) {
		return false
	}
	return true
}

func compileRule(r Rule) (*compiledRule, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if !r.Type.IsValid() {
		return nil, fmt.Errorf("rule %s: unknown task type %q", r.Name, r.Type)
	}
	if r.Match.IsEmpty() {
		return nil, fmt.Errorf("rule %s: match vocabulary is empty", r.Name)
	}

	match, err := r.Match.compile()
	if err != nil {
		return nil, fmt.Errorf("rule %s: match: %w", r.Name, err)
	}
	unless, err := r.Unless.compile()
	if err != nil {
		return nil, fmt.Errorf("rule %s: unless: %w", r.Name, err)
	}

	return &compiledRule{Rule: r, match: match, unless: unless}, nil
}

// Rule names used by the default table.
const (
	RuleReport         = "report"
	RuleReadInfo       = "read-info"
	RuleImplementation = "implementation"
	RuleDefault        = "default"
)

// ReportVocabulary identifies report-generation prompts.
var ReportVocabulary = Vocabulary{
	Words: []string{
		"summary", "summaries", "summarize", "summarise", "summarizing", "summarising",
		"report", "reports", "changelog", "release notes", "digest",
	},
	Terms: []string{
		"レポート", "報告", "要約", "まとめ", "サマリ", "概要をまとめ",
	},
}

// AnalysisVocabulary identifies verification, analysis and inspection prompts.
var AnalysisVocabulary = Vocabulary{
	Words: []string{
		"test", "check", "verify", "verifies", "verified", "verification",
		"validate", "validation", "analyze", "analyse", "analysis", "inspect",
		"inspection", "review", "investigate", "investigation", "audit", "explain",
		"describe", "diagnose", "detect", "detection", "evaluate", "assess",
	},
	Inflect: true,
	Terms: []string{
		"テスト", "チェック", "検証", "分析", "確認", "検査", "解析", "調査",
		"診断", "検知", "説明", "レビュー", "監査", "点検", "評価",
	},
	Patterns: []string{
		`explain the (?:structure|architecture|design|flow)`,
		`\bwhat (?:is|are|does)\b`,
		`\bhow (?:does|do|is)\b`,
	},
}

// ModificationVocabulary identifies prompts that explicitly ask for file
// modifications, including prompts that name a file path or extension.
var ModificationVocabulary = Vocabulary{
	Words: []string{
		"fix", "add", "refactor", "delete", "remove", "write", "implement",
		"create", "rename", "rewrite", "modify", "edit", "replace", "insert",
		"patch", "migrate", "writing", "written", "wrote", "creating", "removing",
		"deleting", "renaming",
	},
	Inflect: true,
	Terms: []string{
		"修正", "追加", "削除", "書いて", "書き換え", "実装", "作成", "変更",
		"更新", "直して", "置換", "リファクタ", "編集",
	},
	Patterns: []string{
		`[\w./-]*\w\.(?:go|ts|tsx|js|jsx|mjs|cjs|py|rb|java|kt|rs|c|h|cc|cpp|hpp|cs|php|swift|scala|sh|sql|html|css|scss|vue|svelte|json|ya?ml|toml|md|txt)\b`,
	},
}

// DefaultRules returns the ordered rule table. Order is precedence: the
// first matching rule wins, and prompts matching nothing are treated as
// Implementation.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  RuleReport,
			Type:  Report,
			Match: ReportVocabulary,
		},
		{
			Name:   RuleReadInfo,
			Type:   ReadInfo,
			Match:  AnalysisVocabulary,
			Unless: ModificationVocabulary,
		},
		{
			Name:  RuleImplementation,
			Type:  Implementation,
			Match: ModificationVocabulary,
		},
	}
}
