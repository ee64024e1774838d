package config

import (
	"errors"
	"fmt"
)

// ErrInvalid 匹配所有语义校验失败，读取或解析失败不属于此类。
var ErrInvalid = errors.New("config: invalid")

// FieldError 指出出错的字段路径，例如 Site.EstimatedPages[menu][pt]。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Is 使 errors.Is(err, ErrInvalid) 对任意 FieldError 成立。
func (e FieldError) Is(target error) bool {
	return target == ErrInvalid
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

func seriesField(section, menuType, language string) string {
	return fmt.Sprintf("%s[%s][%s]", section, menuType, language)
}
