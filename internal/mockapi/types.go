package mockapi

// SaveBody is a received save request.
type SaveBody struct {
	EmployeeName string  `json:"EmployeeName" binding:"required"`
	Lattitude    float64 `json:"Lattitude"`
	Longtitude   float64 `json:"Longtitude"`
	CreatedDate  string  `json:"CreatedDate" binding:"required"`
	Address      string  `json:"Address"`
	CheckIn      bool    `json:"CheckIn"`
	Start        bool    `json:"Start"`
	Stop         bool    `json:"Stop"`
	MockProvider bool    `json:"MockProvider"`
	LeaseNo      string  `json:"LeaseNo"`
	Comment      string  `json:"Comment"`
}

// Type returns the record type name used by get-record.
func (b SaveBody) Type() string {
	switch {
	case b.Start:
		return "start"
	case b.Stop:
		return "stop"
	case b.CheckIn:
		return "kontrak"
	default:
		return "tracking"
	}
}

// UpdateBody is a received update-check request.
type UpdateBody struct {
	EmployeeName string `json:"EmployeeName" binding:"required"`
	LeaseNo      string `json:"LeaseNo" binding:"required"`
	Comment      string `json:"Comment"`
	Latitude     string `json:"Latitude"`
	Longitude    string `json:"Longitude"`
	CheckIn      string `json:"CheckIn"`
	CreatedDate  string `json:"CreatedDate"`
}

type employeeQuery struct {
	EmployeeName string `json:"EmployeeName" binding:"required"`
	CreatedDate  string `json:"CreatedDate"`
	LeaseNo      string `json:"LeaseNo"`
}

type tokenBody struct {
	ClientID     string `json:"ClientId" binding:"required"`
	ClientSecret string `json:"ClientSecret" binding:"required"`
}

// record is one stored save, as returned by get-record.
type record struct {
	ID           int     `json:"Id"`
	EmployeeName string  `json:"EmployeeName"`
	LeaseNo      string  `json:"LeaseNo"`
	CustName     string  `json:"CustName"`
	Lattitude    float64 `json:"Lattitude"`
	Longtitude   float64 `json:"Longtitude"`
	CreatedDate  string  `json:"CreatedDate"`
	Address      string  `json:"Address"`
	Comment      string  `json:"Comment"`
	LabelMap     string  `json:"LabelMap"`
	TipeCheckin  string  `json:"tipechekin"`
}

// Contract is a contract served by get-list-dtl.
type Contract struct {
	CustName    string  `json:"CustName"`
	CustAddress string  `json:"CustAddress"`
	LeaseNo     string  `json:"LeaseNo"`
	PhoneNo     string  `json:"PhoneNo"`
	PoliceNo    string  `json:"PoliceNo"`
	EquipType   string  `json:"EquipType"`
	Unit        string  `json:"Unit"`
	AmountOd    float64 `json:"AmountOd"`
	Overdue     int     `json:"Overdue"`
	DueDate     string  `json:"DueDate"`
	LastNote    string  `json:"LastNote"`
	Comment     string  `json:"Comment"`
	Lattitude   float64 `json:"Lattitude"`
	Longtitude  float64 `json:"Longtitude"`
	CheckinDate string  `json:"CheckinDate"`
}

// Call is one authenticated request as seen by the server.
type Call struct {
	Method     string
	Path       string
	Timestamp  string
	Signature  string
	ExternalID string
	Status     int
}

const neverCheckedIn = "0001-01-01T00:00:00"
