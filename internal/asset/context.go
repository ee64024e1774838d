package asset

import (
	"net/url"
	"regexp"
	"strings"
)

// ContextKind 是页面上下文的标签。
type ContextKind int

const (
	ContextIndex ContextKind = iota
	ContextLanguagePicker
	ContextSpecificMenu
)

func (k ContextKind) String() string {
	switch k {
	case ContextLanguagePicker:
		return "language-picker"
	case ContextSpecificMenu:
		return "specific-menu"
	default:
		return "index"
	}
}

// Context 是对当前页面 URL 的一次分类结果，消费方只根据 Kind 分支。
type Context struct {
	Kind     ContextKind
	MenuType string
	Language string
}

// DefaultLanguage 在 URL 未携带语言时使用。
const DefaultLanguage = "en"

var pageLanguage = regexp.MustCompile(`([a-z0-9]+)-(\w+)\.html$`)

// Classify 根据页面路径与查询参数识别上下文，menuTypes 为站点声明的菜单类型。
func Classify(rawURL string, menuTypes []string) Context {
	path, query := splitURL(rawURL)

	if strings.Contains(path, "/pages/select-menu") || strings.Contains(path, "select-menu.html") {
		return Context{Kind: ContextLanguagePicker, Language: languageOf(path, query)}
	}

	for _, menuType := range menuTypes {
		if strings.Contains(path, "/pages/"+menuType+"/") {
			return Context{
				Kind:     ContextSpecificMenu,
				MenuType: menuType,
				Language: languageOf(path, query),
			}
		}
	}

	return Context{Kind: ContextIndex}
}

func splitURL(raw string) (string, url.Values) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw, url.Values{}
	}
	return parsed.Path, parsed.Query()
}

func languageOf(path string, query url.Values) string {
	if lang := strings.TrimSpace(query.Get("lang")); lang != "" {
		return lang
	}
	if m := pageLanguage.FindStringSubmatch(path); m != nil {
		return m[2]
	}
	return DefaultLanguage
}
