package chatdepot

// Room 群聊房间
type Room struct {
	IRCChannel           string   `json:"irc_channel"`
	OwnerID              uint64   `json:"owner_id"`
	DisplayName          string   `json:"display_name"`
	PublicInvitesEnabled bool     `json:"public_invites_enabled"`
	Cluster              string   `json:"cluster"`
	Servers              []string `json:"servers"`
	ChattersListURL      string   `json:"chatters_list_url"`
}

// User 用户
type User struct {
	ID uint64 `json:"id"`
}

// Membership 房间成员关系
type Membership struct {
	Room        Room   `json:"room"`
	User        User   `json:"user"`
	IsOwner     bool   `json:"is_owner"`
	IsMod       bool   `json:"is_mod"`
	IsConfirmed bool   `json:"is_confirmed"`
	IsBanned    bool   `json:"is_banned"`
	CreatedAt   uint64 `json:"created_at"`
}

// RoomMemberships /room_memberships 的响应
type RoomMemberships struct {
	Memberships []Membership `json:"memberships"`
}

// ServerList /servers 的响应
type ServerList struct {
	Cluster          string   `json:"cluster"`
	Servers          []string `json:"servers"`
	WebsocketServers []string `json:"websockets_servers"`
}
