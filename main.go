package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/menucache/menucache/internal/version"
)

// 退出码：0 成功，1 运行期失败，2 参数错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

// configEnv 在未指定 --config 时提供配置路径。
const configEnv = "MENUCACHE_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath string
	ephemeral  bool
	page       string
	preload    bool
	// console 接收未写入日志文件的日志，打印 JSON 结果的子命令改用 stderr。
	console io.Writer
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// exitError 携带运行期失败的退出码，cobra 自身的参数错误不会被包装。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 运行命令树并返回退出码，方便测试。
func execute(args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return exitUsage
	}
	return exitOK
}

func newRootCmd() *cobra.Command {
	var configFlag string
	var ephemeral bool

	cmd := &cobra.Command{
		Use:   "menucache",
		Short: "Offline cache and asset freshness detection for static menu sites",
		Long: `menucache runs a cache-first controller in front of a static menu site,
detects how many pages each paginated menu has and keeps the offline cache
fresh by comparing header fingerprints of the published images.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	cmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "检测状态只保存在内存中")

	options := func() cliOptions {
		return cliOptions{configPath: resolveConfigPath(configFlag), ephemeral: ephemeral, console: stdOut}
	}

	cmd.AddCommand(
		newServeCmd(options),
		newCheckConfigCmd(options),
		newDetectCmd(options),
		newSweepCmd(options),
		newVersionCmd(),
	)
	return cmd
}

// resolveConfigPath 按 flag > 环境变量 > config.toml 的顺序决定配置路径。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return "config.toml"
}

// runtimeFailure 将运行期错误包装为退出码 1。
func runtimeFailure(format string, args ...any) error {
	return &exitError{code: exitRuntime, err: fmt.Errorf(format, args...)}
}
