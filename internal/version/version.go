package version

import (
	"fmt"
	"runtime/debug"
)

// Version/Commit 可在构建时通过 -ldflags 注入。
var (
	Version = ""
	Commit  = ""
)

const devVersion = "0.1.0-dev"

// Full 返回 CLI 打印用的版本信息。
func Full() string {
	v, c := resolve()
	return fmt.Sprintf("menucache %s (%s)", v, c)
}

// UserAgent 是回源与探测请求携带的标识。
func UserAgent() string {
	v, _ := resolve()
	return "menucache/" + v
}

// resolve 优先使用 ldflags 注入值，其次是 go install 记录的模块版本与 vcs 信息。
func resolve() (string, string) {
	v, c := Version, Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if c == "" && s.Key == "vcs.revision" && len(s.Value) >= 7 {
				c = s.Value[:7]
			}
		}
	}
	if v == "" {
		v = devVersion
	}
	if c == "" {
		c = "dev"
	}
	return v, c
}
