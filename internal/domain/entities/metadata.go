package entities

// Well-known metadata keys
const (
	MetadataProfile           = "profile"
	MetadataDisplayName       = "display_name"
	MetadataPrimaryMembership = "primary_membership"
	MetadataAllMemberships    = "all_memberships"
	MetadataRaidReport        = "raid_report"
	MetadataAvatar            = "avatar"
)

// ProfileMetadata is one key/value fact about a linked platform identity.
// (Platform, PlatformUser, Key) is unique.
type ProfileMetadata struct {
	ID           string   `json:"id" db:"id"`
	Platform     Platform `json:"platform" db:"platform"`
	PlatformUser string   `json:"platform_user" db:"platform_user"`
	Key          string   `json:"key" db:"meta_key"`
	Value        string   `json:"value" db:"meta_value"`
	CreatedAt    int64    `json:"created_at" db:"created_at"`
	UpdatedAt    int64    `json:"updated_at" db:"updated_at"`
}

// MetadataEntry is a key/value pair produced by a provider profile fetch,
// before it is bound to a platform identity
type MetadataEntry struct {
	Key   string
	Value string
}
