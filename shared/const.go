package shared

const (
	UserID   = "user_id"
	UserRole = "user_role"

	RoleAdmin   = "admin"
	RoleStudent = "student"

	ClassificationSafe    = "SAFE"
	ClassificationWarning = "WARNING"
	ClassificationBlocked = "BLOCKED"

	ActionAllow    = "ALLOW"
	ActionThrottle = "THROTTLE"
	ActionBlock    = "BLOCK"
	ActionReview   = "REVIEW"

	PatternRapidFire           = "rapid_fire"
	PatternIterativeRefinement = "iterative_refinement"
	PatternSolutionBuilding    = "solution_building"

	CopyPasteActionCopy  = "copy"
	CopyPasteActionPaste = "paste"
)
