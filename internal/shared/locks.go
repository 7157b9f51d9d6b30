package shared

import "fmt"

// CorrectionLockKey builds the redis key guarding a cost-center correction run.
func CorrectionLockKey(runName string) string {
	return fmt.Sprintf("expensepay:correction:%s:lock", runName)
}

// GLSyncLockKey guards the reconciliation scan against overlapping runs.
func GLSyncLockKey() string {
	return "expensepay:gl_sync:lock"
}
