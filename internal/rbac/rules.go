package rbac

const (
	PermReconcileRun = "reconcile:run"
	PermReportView   = "report:view"
	PermAssistUse    = "assist:use"
	PermRunsList     = "runs:list"
	PermRunsListAll  = "runs:list-all"
	// PermSessionsAny grants access to sessions owned by someone else.
	PermSessionsAny = "sessions:any"
)

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"assistant": {
		PermReportView,
		PermAssistUse,
	},
	"instructor": {
		PermReconcileRun,
		PermReportView,
		PermAssistUse,
		PermRunsList,
	},
	"admin": {
		"*", // everything
	},
}
