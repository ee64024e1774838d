package worker

import (
	"maps"
	"slices"

	"github.com/menucache/menucache/internal/asset"
	"github.com/menucache/menucache/internal/config"
)

// Manifest 返回安装阶段需要预缓存的站内路径，分页菜单图片同时包含 WebP 与 JPEG。
// 结果按配置顺序去重。
func Manifest(cfg *config.Config) []string {
	site := cfg.Site
	seen := make(map[string]struct{})
	var urls []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		urls = append(urls, p)
	}

	for _, list := range [][]string{
		cfg.Manifest.Core,
		cfg.Manifest.Documents,
		cfg.Manifest.Fonts,
		cfg.Manifest.Images,
		cfg.Manifest.Videos,
	} {
		for _, p := range list {
			add(site.SitePath(p))
		}
	}

	for _, menuType := range site.MenuTypes {
		byLang := cfg.Manifest.MenuPages[menuType]
		for _, lang := range slices.Sorted(maps.Keys(byLang)) {
			for page := 1; page <= byLang[lang]; page++ {
				desc := asset.MenuImage(site.BasePath, menuType, lang, page)
				for _, u := range desc.Candidates() {
					add(u)
				}
			}
		}
	}
	return urls
}
