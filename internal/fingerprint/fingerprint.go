// Package fingerprint 将 HEAD 响应的元数据折叠为短小的不透明指纹。
package fingerprint

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Unavailable 用于表示无法获得响应头，该值永远不是十六进制，不会与真实指纹相等。
const Unavailable = "unavailable"

// Width 是真实指纹的固定长度。
const Width = 16

// Headers 是参与指纹计算的响应元数据。
type Headers struct {
	URL           string
	LastModified  string
	ContentLength string
	ETag          string
}

// Empty 判断三个元数据头是否全部缺失。
func (h Headers) Empty() bool {
	return h.LastModified == "" && h.ContentLength == "" && h.ETag == ""
}

// FromResponse 从响应中提取元数据，Content-Length 头缺失时使用解析出的长度。
func FromResponse(url string, resp *http.Response) Headers {
	if resp == nil {
		return Headers{URL: url}
	}
	h := Headers{
		URL:           url,
		LastModified:  strings.TrimSpace(resp.Header.Get("Last-Modified")),
		ContentLength: strings.TrimSpace(resp.Header.Get("Content-Length")),
		ETag:          strings.TrimSpace(resp.Header.Get("ETag")),
	}
	if h.ContentLength == "" && resp.ContentLength >= 0 {
		h.ContentLength = strconv.FormatInt(resp.ContentLength, 10)
	}
	return h
}

// Of 计算确定性的指纹，元数据全部缺失时返回 Unavailable，而不是对空数据求值。
func Of(h Headers) string {
	if h.Empty() {
		return Unavailable
	}
	sum := xxhash.Sum64String(h.URL + ":" + h.LastModified + ":" + h.ContentLength + ":" + h.ETag)
	return fmt.Sprintf("%016x", sum)
}

// Placeholder 返回签名中失败序号的占位值，保持样本位置对齐。
func Placeholder(ordinal int) string {
	return "fallback-" + strconv.Itoa(ordinal)
}

// IsReal 判断值是否为真实计算出的指纹。
func IsReal(value string) bool {
	if len(value) != Width {
		return false
	}
	for _, r := range value {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
