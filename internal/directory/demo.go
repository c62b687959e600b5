package directory

import "time"

// DemoGuildID is the guild seeded into empty directories.
const DemoGuildID = "guild-demo"

type demoData struct {
	guilds   []Guild
	channels []Channel
	members  []Member
	messages []Message
}

func demo(now time.Time) demoData {
	return demoData{
		guilds: []Guild{
			{ID: DemoGuildID, Name: "InterDC Community", IconURL: "https://mc-heads.net/avatar/discord"},
		},
		channels: []Channel{
			{ID: "ch-anuncios", GuildID: DemoGuildID, Name: "anuncios", Category: "Informações", CanView: true, CanTalk: false, Position: 0},
			{ID: "ch-geral", GuildID: DemoGuildID, Name: "geral", Category: "Comunidade", CanView: true, CanTalk: true, Position: 1},
			{ID: "ch-suporte", GuildID: DemoGuildID, Name: "suporte", Category: "Comunidade", CanView: true, CanTalk: true, Position: 2},
			{ID: "ch-voz-lobby", GuildID: DemoGuildID, Name: "lobby-voz", Category: "Voz", Voice: true, CanView: true, CanTalk: false, Position: 3},
		},
		members: []Member{
			{ID: "u-admin", GuildID: DemoGuildID, Name: "Admin", Roles: []string{"Administrador"}, AvatarURL: "https://mc-heads.net/avatar/admin"},
			{ID: "u-helper", GuildID: DemoGuildID, Name: "Helper", Roles: []string{"Suporte"}, AvatarURL: "https://mc-heads.net/avatar/helper"},
			{ID: "u-builder", GuildID: DemoGuildID, Name: "Builder", Roles: []string{"Construtor"}, AvatarURL: "https://mc-heads.net/avatar/builder"},
			{ID: "u-player", GuildID: DemoGuildID, Name: "Minecraft", Roles: []string{"Membro"}, AvatarURL: "https://mc-heads.net/avatar/steve"},
		},
		messages: []Message{
			{ChannelID: "ch-anuncios", Author: "Sistema", Content: "InterDC conectado com sucesso.", Timestamp: now.Add(-3 * time.Minute)},
			{ChannelID: "ch-geral", Author: "Admin", Content: "Bem-vindos ao lobby interativo!", Timestamp: now.Add(-2 * time.Minute)},
			{ChannelID: "ch-suporte", Author: "Helper", Content: "Abra ticket no canal de suporte.", Timestamp: now.Add(-time.Minute)},
		},
	}
}
