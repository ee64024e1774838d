package detection

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menucache/menucache/internal/logging"
)

const (
	pageCountPrefix   = "pageCount_"
	signaturePrefix   = "contentHash_"
	assetPrefix       = "bgAssetHash_"
	versionKey        = "lastSWVersion"
	lastBackgroundKey = "lastBackgroundCheck"
)

// PageCountKey 返回页数记录的键。
func PageCountKey(menuType, language string) string {
	return pageCountPrefix + menuType + "_" + language
}

// SignatureKey 返回内容签名的键。
func SignatureKey(menuType, language string) string {
	return signaturePrefix + menuType + "_" + language
}

// AssetKey 返回后台巡检单资源指纹的键。
func AssetKey(kind, identifier string) string {
	return assetPrefix + kind + "_" + identifier
}

// Store 是 KV 之上的类型化门面，吞掉后端错误并记录日志。
type Store struct {
	kv     KV
	logger *logrus.Entry
	now    func() time.Time
}

// NewStore 包装一个 KV 后端。
func NewStore(kv KV, logger *logrus.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logging.Component(logger, "detection"),
		now:    time.Now,
	}
}

// Close 释放后端。
func (s *Store) Close() error {
	return s.kv.Close()
}

// PageCount 读取页数记录，不存在、不可解析或后端失败均视为缺失。
func (s *Store) PageCount(ctx context.Context, menuType, language string) (int, bool) {
	raw, ok := s.get(ctx, PageCountKey(menuType, language))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// SetPageCount 写入页数记录。
func (s *Store) SetPageCount(ctx context.Context, menuType, language string, count int) {
	s.set(ctx, PageCountKey(menuType, language), strconv.Itoa(count))
}

// Signature 读取内容签名。
func (s *Store) Signature(ctx context.Context, menuType, language string) (string, bool) {
	return s.get(ctx, SignatureKey(menuType, language))
}

// SetSignature 写入内容签名。
func (s *Store) SetSignature(ctx context.Context, menuType, language, signature string) {
	s.set(ctx, SignatureKey(menuType, language), signature)
}

// ClearAll 删除所有页数记录与签名，是唯一的删除路径，可重复调用。
func (s *Store) ClearAll(ctx context.Context) int {
	removed := 0
	for _, prefix := range []string{pageCountPrefix, signaturePrefix} {
		keys, err := s.kv.Keys(ctx, prefix)
		if err != nil {
			s.logger.WithError(err).WithField("prefix", prefix).Warn("detection_list_failed")
			continue
		}
		for _, key := range keys {
			if err := s.kv.Delete(ctx, key); err != nil {
				s.logger.WithError(err).WithField("key", key).Warn("detection_delete_failed")
				continue
			}
			removed++
		}
	}
	s.logger.WithField("removed", removed).Debug("detection_cleared")
	return removed
}

// VersionMarker 读取上次记录的缓存版本。
func (s *Store) VersionMarker(ctx context.Context) (string, bool) {
	return s.get(ctx, versionKey)
}

// SetVersionMarker 写入缓存版本。
func (s *Store) SetVersionMarker(ctx context.Context, version string) {
	s.set(ctx, versionKey, version)
}

// ReconcileVersion 在版本标记与 current 不一致时清空全部检测状态并记录新标记。
// 返回 true 表示发生了清理。
func (s *Store) ReconcileVersion(ctx context.Context, current string) bool {
	stored, ok := s.VersionMarker(ctx)
	if ok && stored == current {
		return false
	}
	s.ClearAll(ctx)
	s.SetVersionMarker(ctx, current)
	s.logger.WithFields(logrus.Fields{
		"previous": stored,
		"current":  current,
	}).Info("detection_version_changed")
	return true
}

// AssetFingerprint 读取后台巡检保存的单资源指纹。
func (s *Store) AssetFingerprint(ctx context.Context, kind, identifier string) (string, bool) {
	return s.get(ctx, AssetKey(kind, identifier))
}

// SetAssetFingerprint 写入单资源指纹。
func (s *Store) SetAssetFingerprint(ctx context.Context, kind, identifier, value string) {
	s.set(ctx, AssetKey(kind, identifier), value)
}

// LastBackgroundCheck 返回上次后台巡检的时间，从未执行时返回零值。
func (s *Store) LastBackgroundCheck(ctx context.Context) time.Time {
	raw, ok := s.get(ctx, lastBackgroundKey)
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetLastBackgroundCheck 将当前时间记为上次巡检时间。
func (s *Store) SetLastBackgroundCheck(ctx context.Context) {
	s.set(ctx, lastBackgroundKey, strconv.FormatInt(s.now().UnixMilli(), 10))
}

func (s *Store) get(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("detection_read_failed")
		return "", false
	}
	return value, ok
}

func (s *Store) set(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("detection_write_failed")
	}
}
