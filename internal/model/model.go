package model

import "time"

// SentinelContractID marks a check-in that is not tied to a contract.
// Such check-ins are exempt from the one-per-day rule and upload as tracking.
const SentinelContractID = "_tracking_"

// Location is a coordinate pair in degrees.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Fix is one raw position delivered by the platform location scheduler.
type Fix struct {
	Location
	Accuracy  float64   `json:"accuracy"` // meters, 0 when unknown
	Timestamp time.Time `json:"timestamp"`
	Mocked    bool      `json:"mocked,omitempty"`
}

// Batch is a single scheduler callback: a set of fixes or an error.
type Batch struct {
	Fixes []Fix
	Err   error
}

// TrackingPoint is an accepted background position.
// Identity is (EmployeeID, Timestamp, Latitude, Longitude).
type TrackingPoint struct {
	ID         int64   `json:"id"`
	EmployeeID string  `json:"employee_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  string  `json:"timestamp"`
	Uploaded   bool    `json:"uploaded"`
}

// EventKind is the kind of a start/stop event.
type EventKind string

const (
	KindStart EventKind = "start"
	KindStop  EventKind = "stop"
)

// Valid reports whether k is start or stop.
func (k EventKind) Valid() bool {
	return k == KindStart || k == KindStop
}

// StartStopEvent records the user starting or stopping a working session.
// Identity is (EmployeeID, Kind, Timestamp).
type StartStopEvent struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Kind       EventKind `json:"kind"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  string    `json:"timestamp"`
	Address    string    `json:"address"`
	Uploaded   bool      `json:"uploaded"`
}

// ContractCheckin is a check-in at a contract location.
type ContractCheckin struct {
	ID         int64   `json:"id"`
	ContractID string  `json:"contract_id"`
	EmployeeID string  `json:"employee_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  string  `json:"timestamp"`
	Comment    string  `json:"comment"`
	Address    string  `json:"address"`
	Uploaded   bool    `json:"uploaded"`
}

// IsTracking reports whether the check-in carries the sentinel contract id.
func (c ContractCheckin) IsTracking() bool {
	return c.ContractID == SentinelContractID || c.ContractID == ""
}

// Contract is one entry of the employee's assigned contract list.
type Contract struct {
	LeaseNo      string   `json:"LeaseNo"`
	CustName     string   `json:"CustName"`
	CustAddress  string   `json:"CustAddress,omitempty"`
	PhoneNo      string   `json:"PhoneNo,omitempty"`
	PoliceNo     string   `json:"PoliceNo,omitempty"`
	EquipType    string   `json:"EquipType,omitempty"`
	Unit         string   `json:"Unit,omitempty"`
	AmountOd     float64  `json:"AmountOd,omitempty"`
	Overdue      int      `json:"Overdue,omitempty"`
	DueDate      string   `json:"DueDate,omitempty"`
	LastCallDate string   `json:"LastCallDate,omitempty"`
	LastCallName string   `json:"LastCallName,omitempty"`
	LastNote     string   `json:"LastNote,omitempty"`
	Comment      string   `json:"Comment,omitempty"`
	Latitude     *float64 `json:"Latitude,omitempty"`
	Longitude    *float64 `json:"Longitude,omitempty"`
	CheckinDate  string   `json:"CheckinDate,omitempty"`
	CheckedIn    bool     `json:"isCheckedIn"`
}

// ContractSnapshot is the cached contract list of one employee.
type ContractSnapshot struct {
	EmployeeID  string     `json:"employee_id"`
	Contracts   []Contract `json:"contracts"`
	RefreshedAt string     `json:"refreshed_at"`
}

// IsStale reports whether the snapshot was refreshed before today's civil date.
func (s ContractSnapshot) IsStale(today string) bool {
	return s.RefreshedAt == "" || CivilDate(s.RefreshedAt) < today
}

// Display labels for the merged local event list.
const (
	LabelStart    = "Start"
	LabelStop     = "Stop"
	LabelTracking = "Tracking"
	LabelContract = "Contract"
)

// DisplayEvent is one row of the merged, time-ordered local event list.
type DisplayEvent struct {
	Source     string  `json:"source"` // tracking | start_stop | checkin
	Label      string  `json:"label"`
	ID         int64   `json:"id"`
	EmployeeID string  `json:"employee_id"`
	ContractID string  `json:"contract_id,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timestamp  string  `json:"timestamp"`
	Address    string  `json:"address,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	Uploaded   bool    `json:"uploaded"`
}

// Event sources of a DisplayEvent.
const (
	SourceTracking  = "tracking"
	SourceStartStop = "start_stop"
	SourceCheckin   = "checkin"
)
