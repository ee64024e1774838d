// Package asset 定义可被探测的站点资源以及页面上下文分类。
package asset

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind 区分资源种类，决定探测方式与指纹存储键。
type Kind string

const (
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindFont      Kind = "font"
	KindMenuImage Kind = "menu-image"
)

// Format 是分页菜单图片的编码格式，探测顺序总是 WebP 优先。
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
)

// Extension 返回格式对应的文件后缀。
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return "webp"
}

// Descriptor 标识一次检查的最小单元，构造后不可修改，也不会被持久化。
type Descriptor struct {
	Kind        Kind
	URL         string
	FallbackURL string
	MenuType    string
	Language    string
	Page        int
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Identifier 返回指纹存储使用的资源标识。
func (d Descriptor) Identifier() string {
	if d.Kind == KindMenuImage {
		return fmt.Sprintf("%s_%s_%d", d.MenuType, d.Language, d.Page)
	}
	return nonAlnum.ReplaceAllString(d.URL, "_")
}

// Candidates 返回按探测顺序排列的 URL，回退格式不是独立的资源。
func (d Descriptor) Candidates() []string {
	if d.FallbackURL == "" {
		return []string{d.URL}
	}
	return []string{d.URL, d.FallbackURL}
}

// MenuImagePath 构造分页菜单图片路径：
//
//	<base>assets/images/<menuType>/<lang>/<menuType>_<lang>-<page>.<ext>
func MenuImagePath(basePath, menuType, language string, page int, format Format) string {
	return fmt.Sprintf("%sassets/images/%s/%s/%s_%s-%d.%s",
		normalizeBase(basePath), menuType, language, menuType, language, page, format.Extension())
}

// MenuImage 构造某一页的描述符，主 URL 为 WebP，回退为 JPEG。
func MenuImage(basePath, menuType, language string, page int) Descriptor {
	return Descriptor{
		Kind:        KindMenuImage,
		URL:         MenuImagePath(basePath, menuType, language, page, FormatWebP),
		FallbackURL: MenuImagePath(basePath, menuType, language, page, FormatJPEG),
		MenuType:    menuType,
		Language:    language,
		Page:        page,
	}
}

// Static 构造非分页资源的描述符。
func Static(kind Kind, url string) Descriptor {
	return Descriptor{Kind: kind, URL: url}
}

func normalizeBase(basePath string) string {
	if basePath == "" {
		return "/"
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath += "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return basePath
}
