package model

// App state keys.
const (
	StateTrackingActive   = "is_tracking"
	StateLastUpload       = "last_server_upload"     // unix millis of last successful tracking upload
	StateLastSentTime     = "last_sent_timestamp"    // civil timestamp of last uploaded point
	StateLastSentLocation = "last_sent_location"     // JSON Location
	StateLastTracked      = "last_tracked_location"  // JSON Location of last accepted point
	StateLastStopCheck    = "last_stop_check"        // unix millis of last remote stop check
	StateLastStartCheckin = "last_start_checkin"     // JSON of the last start event location and time
	StateLastMaintenance  = "last_daily_maintenance" // civil date of last daily rollover
	StateFirstSyncDate    = "first_sync_date"        // civil date of the first tracking upload of the day
)

// CheckinInProgressKey is the transient indicator set while a check-in is pending.
func CheckinInProgressKey(contractID string) string {
	return "checkin_in_progress:" + contractID
}
