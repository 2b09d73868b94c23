package shared

import "strconv"

const lockPrefix = "ledger:lock:"

// PeriodCloseLockKey guards closing and reopening one accounting period.
func PeriodCloseLockKey(periodID int64) string {
	return lockPrefix + "period:" + strconv.FormatInt(periodID, 10)
}

// AssetLockKey guards a single asset's depreciation run.
func AssetLockKey(assetID int64) string {
	return lockPrefix + "asset:" + strconv.FormatInt(assetID, 10)
}
