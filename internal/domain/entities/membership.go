package entities

// MembershipType is Bungie's BungieMembershipType code
type MembershipType int

const (
	MembershipAll       MembershipType = -1
	MembershipNone      MembershipType = 0
	MembershipXbox      MembershipType = 1
	MembershipPSN       MembershipType = 2
	MembershipSteam     MembershipType = 3
	MembershipBlizzard  MembershipType = 4
	MembershipStadia    MembershipType = 5
	MembershipEGS       MembershipType = 6
	MembershipDemon     MembershipType = 10
	MembershipNextEntry MembershipType = 254
)

// ReportPlatform is the platform segment used by raid.report URLs
type ReportPlatform string

const (
	ReportPlatformNone        ReportPlatform = "none"
	ReportPlatformXbox        ReportPlatform = "xb"
	ReportPlatformPlayStation ReportPlatform = "ps"
	ReportPlatformPC          ReportPlatform = "pc"
)

// DefaultReportPlatform is used for any membership type not in reportPlatforms
const DefaultReportPlatform = ReportPlatformPC

var reportPlatforms = map[MembershipType]ReportPlatform{
	MembershipNone:      ReportPlatformNone,
	MembershipXbox:      ReportPlatformXbox,
	MembershipPSN:       ReportPlatformPlayStation,
	MembershipSteam:     ReportPlatformPC,
	MembershipBlizzard:  ReportPlatformPC,
	MembershipStadia:    ReportPlatformPC,
	MembershipEGS:       ReportPlatformPC,
	MembershipDemon:     ReportPlatformPC,
	MembershipNextEntry: ReportPlatformPC,
	MembershipAll:       ReportPlatformPC,
}

// ReportPlatform maps the membership type to a raid.report platform.
// Unmapped codes fall through to DefaultReportPlatform.
func (m MembershipType) ReportPlatform() ReportPlatform {
	if p, ok := reportPlatforms[m]; ok {
		return p
	}
	return DefaultReportPlatform
}

// DestinyMembership is one entry of Bungie's destinyMemberships list
type DestinyMembership struct {
	MembershipType MembershipType `json:"membershipType"`
	MembershipID   string         `json:"membershipId"`
	DisplayName    string         `json:"displayName,omitempty"`
}
