package urlutil

import (
	"fmt"
	"strconv"
	"strings"
)

// DiscordAvatarURL builds a Discord CDN avatar URL with fallback to the
// default avatar.
//
// Parameters:
//   - userID: The Discord user ID (snowflake)
//   - discriminator: Legacy discriminator ("0" or empty for migrated accounts)
//   - avatarHash: Hash of the user avatar (empty if not set)
//   - size: Desired image size (64, 128, 256, etc.)
func DiscordAvatarURL(userID, discriminator, avatarHash string, size int) string {
	if avatarHash != "" {
		ext := "png"
		if strings.HasPrefix(avatarHash, "a_") {
			ext = "gif"
		}
		return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.%s?size=%d",
			userID, avatarHash, ext, size)
	}

	// legacy accounts index by discriminator, migrated ones by user ID
	var index int64
	if disc, err := strconv.ParseInt(discriminator, 10, 64); err == nil && disc != 0 {
		index = disc % 5
	} else {
		id, _ := strconv.ParseInt(userID, 10, 64)
		index = (id >> 22) % 6
	}
	return fmt.Sprintf("https://cdn.discordapp.com/embed/avatars/%d.png", index)
}
