package rbac

// Attempt engine permissions.
const (
	AttemptCreate  = "attempt:create"
	AttemptSave    = "attempt:save"
	AttemptSubmit  = "attempt:submit"
	AttemptCancel  = "attempt:cancel"
	AttemptViewOwn = "attempt:view-own"
	AttemptViewAll = "attempt:view-all"
	AttemptGrade   = "attempt:grade"
)

// Permissions is every permission a route can require. Policies may only
// grant these, or patterns that match at least one of them.
var Permissions = []string{
	AttemptCreate,
	AttemptSave,
	AttemptSubmit,
	AttemptCancel,
	AttemptViewOwn,
	AttemptViewAll,
	AttemptGrade,
}

// Default policy.
var RolePermissions = map[string][]string{
	"student": {
		AttemptCreate,
		AttemptSave,
		AttemptSubmit,
		AttemptCancel,
		AttemptViewOwn,
	},
	"grader": {
		AttemptViewAll,
		AttemptGrade,
	},
	"admin": {
		"*", // everything
	},
}
