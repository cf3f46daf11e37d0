package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions 所有子命令共用的全局参数
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand 创建 subgames 根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "subgames",
		Short: "subgames - 直播频道的游戏大厅机器人",
		Long: `subgames 为一个直播频道同时托管游戏平台身份与两个聊天身份，
在两边都就绪后取得游戏大厅的房主权限并管理大厅。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "配置文件路径，为空时按默认路径查找")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "输出 debug 日志")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRoomsCommand(opts))
	cmd.AddCommand(NewServersCommand(opts))

	return cmd
}
