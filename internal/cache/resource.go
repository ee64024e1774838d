package cache

import (
	"net/url"
	"path"
	"strings"
)

// ResourceType 是按扩展名得到的资源分类。
type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceStyle    ResourceType = "style"
	ResourceScript   ResourceType = "script"
	ResourceImage    ResourceType = "image"
	ResourceVideo    ResourceType = "video"
	ResourceFont     ResourceType = "font"
	ResourceStatic   ResourceType = "static"
)

var extensionTypes = map[string]ResourceType{
	".html":  ResourceDocument,
	".css":   ResourceStyle,
	".js":    ResourceScript,
	".jpg":   ResourceImage,
	".jpeg":  ResourceImage,
	".png":   ResourceImage,
	".gif":   ResourceImage,
	".webp":  ResourceImage,
	".svg":   ResourceImage,
	".mp4":   ResourceVideo,
	".webm":  ResourceVideo,
	".woff":  ResourceFont,
	".woff2": ResourceFont,
	".ttf":   ResourceFont,
	".otf":   ResourceFont,
}

// Classify 仅根据 URL 路径的扩展名判断资源类型，查询串不参与判断。
func Classify(rawURL string) ResourceType {
	p := URLPath(rawURL)
	if p == "/" || strings.HasSuffix(p, "/") {
		return ResourceDocument
	}
	if t, ok := extensionTypes[strings.ToLower(path.Ext(p))]; ok {
		return t
	}
	return ResourceStatic
}

// URLPath 提取 URL 的路径部分，可接受绝对 URL 或站内路径。
func URLPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			rawURL = rawURL[:i]
		}
		return rawURL
	}
	if parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

// BucketSet 是某个缓存版本的全部 bucket 名称。
type BucketSet struct {
	Version string
}

func (b BucketSet) Static() string    { return "static-assets-" + b.Version }
func (b BucketSet) Images() string    { return "images-" + b.Version }
func (b BucketSet) Documents() string { return "documents-" + b.Version }
func (b BucketSet) Fonts() string     { return "fonts-" + b.Version }
func (b BucketSet) Videos() string    { return "videos-" + b.Version }

// Names 返回该版本拥有的 bucket 名称。
func (b BucketSet) Names() []string {
	return []string{b.Static(), b.Images(), b.Documents(), b.Fonts(), b.Videos()}
}

// Contains 判断 name 是否属于该版本。
func (b BucketSet) Contains(name string) bool {
	for _, n := range b.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// BucketOf 返回资源类型对应的 bucket，样式与脚本归入静态 bucket。
func (b BucketSet) BucketOf(t ResourceType) string {
	switch t {
	case ResourceImage:
		return b.Images()
	case ResourceDocument:
		return b.Documents()
	case ResourceFont:
		return b.Fonts()
	case ResourceVideo:
		return b.Videos()
	default:
		return b.Static()
	}
}

// BucketFor 在查找时根据 URL 计算所属 bucket。
func (b BucketSet) BucketFor(rawURL string) string {
	return b.BucketOf(Classify(rawURL))
}
