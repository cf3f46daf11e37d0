package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/subgames/internal/chatdepot"
	"github.com/junbin-yang/subgames/internal/config"
)

// RoomsOptions rooms 命令参数
type RoomsOptions struct {
	*RootOptions
	Token    string
	DepotURL string
	Timeout  time.Duration
}

// NewRoomsCommand 创建 rooms 命令：查询账号加入的群聊房间
func NewRoomsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoomsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "列出聊天账号加入的群聊房间",
		Long: `查询聊天账号的群聊房间成员关系并以 JSON 输出。
未指定 --token 时使用配置文件中的 chat.token 与 chat.depot_url。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRooms(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "", "聊天账号 OAuth 令牌")
	cmd.Flags().StringVar(&opts.DepotURL, "depot-url", config.Default().Chat.DepotURL, "群聊 REST 服务地址")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "请求超时")

	return cmd
}

func listRooms(ctx context.Context, opts *RoomsOptions, out io.Writer) error {
	token, depotURL := opts.Token, opts.DepotURL
	if token == "" {
		cfg, mgr, err := loadConfig(opts.RootOptions, false)
		if err != nil {
			return err
		}
		mgr.Close()
		token, depotURL = cfg.Chat.Token, cfg.Chat.DepotURL
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := chatdepot.NewClient(depotURL, chatdepot.WithTimeout(opts.Timeout))
	rooms, err := client.RoomMemberships(ctx, token)
	if err != nil {
		return fmt.Errorf("room memberships: %w", err)
	}
	return writeJSON(out, rooms)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
