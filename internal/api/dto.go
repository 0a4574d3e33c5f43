package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fieldsync/internal/model"
)

// Endpoint paths.
const (
	PathToken       = "/common/v1/auth/token"
	PathSave        = "/common/v1/mobile/save"
	PathUpdateCheck = "/common/v1/mobile/update-check"
	PathIsStarted   = "/common/v1/mobile/isStarted"
	PathGetRecord   = "/common/v1/mobile/get-record"
	PathListDtl     = "/common/v1/mobile/get-list-dtl"
)

// StatusOK is the Status value of an accepted request.
const StatusOK = 1

// StatusResponse is the envelope of every API response.
type StatusResponse[T any] struct {
	Status  int    `json:"Status"`
	Message string `json:"Message,omitempty"`
	Data    T      `json:"Data,omitempty"`
}

// Accepted reports whether the server accepted the request.
func (r StatusResponse[T]) Accepted() bool {
	return r.Status == StatusOK
}

// SaveType selects which flag a save request sets.
type SaveType string

const (
	SaveTracking SaveType = "tracking"
	SaveStart    SaveType = "start"
	SaveStop     SaveType = "stop"
	SaveContract SaveType = "kontrak"
)

// SaveRequest is the body of PathSave.
type SaveRequest struct {
	EmployeeName string  `json:"EmployeeName" validate:"required"`
	Lattitude    float64 `json:"Lattitude" validate:"latitude"`
	Longtitude   float64 `json:"Longtitude" validate:"longitude"`
	CreatedDate  string  `json:"CreatedDate" validate:"required,datetime=2006-01-02T15:04:05"`
	Address      string  `json:"Address"`
	CheckIn      bool    `json:"CheckIn"`
	Start        bool    `json:"Start"`
	Stop         bool    `json:"Stop"`
	MockProvider bool    `json:"MockProvider"`
	LeaseNo      string  `json:"LeaseNo,omitempty"`
	Comment      string  `json:"Comment,omitempty"`
}

// NewSaveRequest builds a save body of the given type. Address is only sent
// for start, stop and contract saves.
func NewSaveRequest(typ SaveType, employee string, loc model.Location, createdDate, address string) SaveRequest {
	req := SaveRequest{
		EmployeeName: employee,
		Lattitude:    loc.Latitude,
		Longtitude:   loc.Longitude,
		CreatedDate:  createdDate,
	}
	switch typ {
	case SaveStart:
		req.Start = true
		req.Address = address
	case SaveStop:
		req.Stop = true
		req.Address = address
	case SaveContract:
		req.CheckIn = true
		req.Address = address
	}
	return req
}

// UpdateCheckRequest is the body of PathUpdateCheck.
type UpdateCheckRequest struct {
	EmployeeName string `json:"EmployeeName" validate:"required"`
	LeaseNo      string `json:"LeaseNo" validate:"required"`
	Comment      string `json:"Comment"`
	Latitude     string `json:"Latitude"`
	Longitude    string `json:"Longitude"`
	CheckIn      string `json:"CheckIn" validate:"required"`
	CreatedDate  string `json:"CreatedDate"`
}

// StatusRequest is the body of PathIsStarted.
type StatusRequest struct {
	EmployeeName string `json:"EmployeeName" validate:"required"`
	CreatedDate  string `json:"CreatedDate"`
}

// Next actions reported by PathIsStarted.
const (
	NextActionStart = "Start" // no active session: tracking must stop
	NextActionStop  = "Stop"  // session active: tracking may continue
)

// TrackingStatus is the Data of a PathIsStarted response.
type TrackingStatus struct {
	NextAction string `json:"NextAction"`
}

// Active reports whether the server considers the session started.
func (s TrackingStatus) Active() bool {
	return s.NextAction == NextActionStop
}

// RecordRequest is the body of PathGetRecord.
type RecordRequest struct {
	EmployeeName string `json:"EmployeeName" validate:"required"`
	CreatedDate  string `json:"CreatedDate"`
}

// Coord is a coordinate the server may send as a number or a string.
type Coord float64

// UnmarshalJSON accepts 1.5, "1.5", "" and null.
func (c *Coord) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("coordinate %s: %w", string(b), err)
	}
	*c = Coord(f)
	return nil
}

// Record is one event returned by PathGetRecord.
type Record struct {
	ID           json.RawMessage `json:"Id,omitempty"`
	EmployeeName string          `json:"EmployeeName"`
	LeaseNo      string          `json:"LeaseNo"`
	CustName     string          `json:"CustName"`
	Lattitude    Coord           `json:"Lattitude"`
	Latitude     Coord           `json:"Latitude"`
	Longtitude   Coord           `json:"Longtitude"`
	Longitude    Coord           `json:"Longitude"`
	CreatedDate  string          `json:"CreatedDate"`
	Address      string          `json:"Address"`
	Comment      string          `json:"Comment"`
	LabelMap     string          `json:"LabelMap"`
	TipeCheckin  string          `json:"tipechekin"`
	Start        bool            `json:"Start"`
	Stop         bool            `json:"Stop"`
	CheckIn      bool            `json:"CheckIn"`
}

// Kind resolves the record type: explicit type, then map label, then flags.
func (r Record) Kind() SaveType {
	switch SaveType(r.TipeCheckin) {
	case SaveTracking, SaveStart, SaveStop, SaveContract:
		return SaveType(r.TipeCheckin)
	}
	switch r.LabelMap {
	case "Start":
		return SaveStart
	case "Stop":
		return SaveStop
	case "Checkin":
		return SaveContract
	}
	switch {
	case r.Start:
		return SaveStart
	case r.Stop:
		return SaveStop
	case r.CheckIn:
		return SaveContract
	}
	return SaveTracking
}

// Location returns the record's coordinates, preferring the misspelled fields.
func (r Record) Location() model.Location {
	lat, lng := r.Lattitude, r.Longtitude
	if lat == 0 {
		lat = r.Latitude
	}
	if lng == 0 {
		lng = r.Longitude
	}
	return model.Location{Latitude: float64(lat), Longitude: float64(lng)}
}

// Timestamp returns CreatedDate as a civil timestamp (second precision).
func (r Record) Timestamp() string {
	ts := strings.TrimSuffix(r.CreatedDate, "Z")
	if len(ts) > len(model.CivilLayout) {
		ts = ts[:len(model.CivilLayout)]
	}
	return ts
}

// ListRequest is the body of PathListDtl.
type ListRequest struct {
	EmployeeName string `json:"EmployeeName" validate:"required"`
	LeaseNo      string `json:"LeaseNo"`
}

// ContractDTO is one contract returned by PathListDtl.
type ContractDTO struct {
	CustName     string  `json:"CustName"`
	CustAddress  string  `json:"CustAddress"`
	LeaseNo      string  `json:"LeaseNo"`
	PhoneNo      string  `json:"PhoneNo"`
	PoliceNo     string  `json:"PoliceNo"`
	EquipType    string  `json:"EquipType"`
	Unit         string  `json:"Unit"`
	AmountOd     float64 `json:"AmountOd"`
	Overdue      int     `json:"Overdue"`
	DueDate      string  `json:"DueDate"`
	LastCallDate string  `json:"LastCallDate"`
	LastCallName string  `json:"LastCallName"`
	LastNote     string  `json:"LastNote"`
	Comment      string  `json:"Comment"`
	Lattitude    Coord   `json:"Lattitude"`
	Longtitude   Coord   `json:"Longtitude"`
	CheckinDate  string  `json:"CheckinDate"`
}

// zeroCheckinDate is the server's "never checked in" value.
const zeroCheckinDate = "0001-01-01T00:00:00"

// ToModel converts the DTO to a model.Contract.
func (d ContractDTO) ToModel() model.Contract {
	c := model.Contract{
		LeaseNo:      d.LeaseNo,
		CustName:     d.CustName,
		CustAddress:  d.CustAddress,
		PhoneNo:      d.PhoneNo,
		PoliceNo:     d.PoliceNo,
		EquipType:    d.EquipType,
		Unit:         d.Unit,
		AmountOd:     d.AmountOd,
		Overdue:      d.Overdue,
		DueDate:      d.DueDate,
		LastCallDate: d.LastCallDate,
		LastCallName: d.LastCallName,
		LastNote:     d.LastNote,
		Comment:      d.Comment,
	}
	if d.Lattitude != 0 {
		lat := float64(d.Lattitude)
		c.Latitude = &lat
	}
	if d.Longtitude != 0 {
		lng := float64(d.Longtitude)
		c.Longitude = &lng
	}
	if d.CheckinDate != "" && d.CheckinDate != zeroCheckinDate {
		c.CheckinDate = d.CheckinDate
		c.CheckedIn = true
	}
	return c
}

// TokenRequest is the body of PathToken.
type TokenRequest struct {
	ClientID     string `json:"ClientId" validate:"required"`
	ClientSecret string `json:"ClientSecret" validate:"required"`
}

// TokenResponse is the Data of a PathToken response.
type TokenResponse struct {
	AccessToken string `json:"AccessToken"`
	ClientID    string `json:"ClientId"`
	ValidTo     string `json:"ValidTo"`
}

// parseValidTo accepts RFC 3339 or a zone-less timestamp interpreted in UTC.
func parseValidTo(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
