package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/subgames/internal/chatdepot"
	"github.com/junbin-yang/subgames/internal/config"
)

// ServersOptions servers 命令参数
type ServersOptions struct {
	*RootOptions
	ServersURL string
	Attempts   int
}

// NewServersCommand 创建 servers 命令：列出聊天集群的服务器
func NewServersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "servers <cluster>",
		Short: "列出聊天集群的服务器地址",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listServers(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ServersURL, "servers-url", config.Default().Chat.ServersURL, "服务器目录地址")
	cmd.Flags().IntVar(&opts.Attempts, "attempts", 3, "失败时的尝试次数")

	return cmd
}

func listServers(ctx context.Context, opts *ServersOptions, cluster string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir := chatdepot.NewDirectory(opts.ServersURL, chatdepot.WithRetry(opts.Attempts, 500*time.Millisecond))
	list, err := dir.Refresh(ctx, cluster)
	if err != nil {
		return fmt.Errorf("servers for %s: %w", cluster, err)
	}
	return writeJSON(out, list)
}
