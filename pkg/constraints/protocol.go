package constraints

type Action int32

const (
	DELETE Action = 0
	PUT    Action = 1
)

// Kind discriminates what a stream message describes.
const (
	KindFlag     = "flag"
	KindOverride = "override"
	KindPing     = "ping"
)

// Subscription tier names as they appear on the wire and in storage.
const (
	TierFree         = "free"
	TierBasic        = "basic"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)
