package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

var (
	outBuf *bytes.Buffer
	errBuf *bytes.Buffer
)

// useBufferWriters 在测试期间把 stdOut/stdErr 换成内存缓冲，结束后恢复。
func useBufferWriters(t *testing.T) {
	t.Helper()

	prevOut, prevErr := stdOut, stdErr
	outBuf, errBuf = &bytes.Buffer{}, &bytes.Buffer{}
	stdOut, stdErr = outBuf, errBuf

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
}

func stdOutBuffer() *bytes.Buffer { return outBuf }

func stdErrBuffer() *bytes.Buffer { return errBuf }

// configFixture 指向 config 包的测试配置，go test 以包目录为工作目录。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("internal", "config", "testdata", name)
}
