package sqlpool

import "context"

// Approver confirms destructive database operations such as DROP DATABASE.
//
// Implementations:
//   - ForcedApprover: shows a countdown and approves unless cancelled
//   - InteractiveApprover: asks the user to type the database name
type Approver interface {
	// RequestApproval asks whether action (e.g. "DROP") may run against dbName.
	// A denial is reported as (false, nil); errors mean no answer was obtained.
	RequestApproval(ctx context.Context, action, dbName string) (bool, error)
}
