package sweep

import (
	"context"

	"github.com/menucache/menucache/internal/asset"
)

// Assets 返回某一页面上下文需要巡检的资源：
// 首页检查全部静态资源与每种语言前几页菜单图片，语言选择页只检查图片与所选语言，
// 具体菜单页不检查，由前台编排器负责。
func (s *Sweeper) Assets(ctx context.Context, pageCtx asset.Context) []asset.Descriptor {
	site := s.cfg.Site
	lists := s.cfg.Sweep

	statics := func(kind asset.Kind, urls []string) []asset.Descriptor {
		out := make([]asset.Descriptor, 0, len(urls))
		for _, u := range urls {
			out = append(out, asset.Static(kind, site.SitePath(u)))
		}
		return out
	}

	var assets []asset.Descriptor
	switch pageCtx.Kind {
	case asset.ContextSpecificMenu:
		return nil
	case asset.ContextLanguagePicker:
		assets = append(assets, statics(asset.KindImage, lists.StaticImages)...)
		assets = append(assets, s.menuImages(ctx, []string{pageCtx.Language})...)
	default:
		assets = append(assets, statics(asset.KindVideo, lists.StaticVideos)...)
		assets = append(assets, statics(asset.KindImage, lists.StaticImages)...)
		assets = append(assets, statics(asset.KindFont, lists.StaticFonts)...)
		assets = append(assets, s.menuImages(ctx, site.Languages)...)
	}
	return assets
}

// menuImages 为每个系列取前 min(已知页数, ProbePages) 页，未知页数时取 ProbePages 页。
func (s *Sweeper) menuImages(ctx context.Context, languages []string) []asset.Descriptor {
	limit := max(1, s.cfg.Sweep.ProbePages)
	var out []asset.Descriptor
	for _, lang := range languages {
		for _, menuType := range s.cfg.Site.MenuTypes {
			pages := limit
			if count, ok := s.store.PageCount(ctx, menuType, lang); ok {
				pages = min(count, limit)
			}
			for page := 1; page <= pages; page++ {
				out = append(out, asset.MenuImage(s.cfg.Site.BasePath, menuType, lang, page))
			}
		}
	}
	return out
}
