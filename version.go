package main

import (
	"github.com/menucache/menucache/internal/version"
)

// versionString 返回注入的版本 + 提交信息。
func versionString() string {
	return version.Full()
}
