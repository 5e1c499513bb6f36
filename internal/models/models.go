// Package models defines the CRM entities kept in the encrypted collections.
//
// JSON field names are camelCase and stable: they are the canonical
// serialization that gets encrypted, exported and imported, and they match
// the data written by earlier plaintext versions of the store.
package models

// Role of a person in a property transaction.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Interaction is one logged touchpoint with a contact.
type Interaction struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // 電話, LINE, 面談, 帶看, 備註
	Content string `json:"content"`
	Date    string `json:"date"` // YYYY-MM-DD
}

// Interaction types.
const (
	InteractionCall    = "電話"
	InteractionLine    = "LINE"
	InteractionMeeting = "面談"
	InteractionViewing = "帶看"
	InteractionNote    = "備註"
)

// Lead is an unprocessed inbound enquiry.
type Lead struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	RawContent    string `json:"rawContent"`
	ReceivedAt    string `json:"receivedAt"`
	Status        string `json:"status"` // pending, processed
	Role          Role   `json:"role"`
	Budget        int64  `json:"budget"`
	PreferredArea string `json:"preferredArea"`

	City         string   `json:"city,omitempty"`
	District     string   `json:"district,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	Urgency      string   `json:"urgency,omitempty"`
	PropertyType string   `json:"propertyType,omitempty"`
	Layout       string   `json:"layout,omitempty"`
	AIMatchScore *float64 `json:"aiMatchScore,omitempty"`
	Matches      *int     `json:"potentialMatches,omitempty"`
}

// Lead statuses.
const (
	LeadPending   = "pending"
	LeadProcessed = "processed"
)

// Contact is a buyer or seller under management.
type Contact struct {
	ID            string `json:"id"`
	Source        string `json:"source,omitempty"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Role          Role   `json:"role,omitempty"`
	Budget        int64  `json:"budget,omitempty"`
	PreferredArea string `json:"preferredArea,omitempty"`
	City          string `json:"city,omitempty"`
	District      string `json:"district,omitempty"`
	Purpose       string `json:"purpose,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
	PropertyType  string `json:"propertyType,omitempty"`
	Layout        string `json:"layout,omitempty"`

	Email         string        `json:"email"`
	Requirement   string        `json:"requirement"`
	Status        string        `json:"status"`
	LastContacted string        `json:"lastContacted"`
	ClosedDate    string        `json:"closedDate,omitempty"`
	Tags          []string      `json:"tags"`
	Interactions  []Interaction `json:"interactions"`

	Gmail           string `json:"gmail,omitempty"`
	LineID          string `json:"lineId,omitempty"`
	LineName        string `json:"lineName,omitempty"`
	OfficialAccount string `json:"officialAccount,omitempty"`
	Birthday        string `json:"birthday,omitempty"`

	ContactPerson     string `json:"contactPerson,omitempty"`
	OwnerName         string `json:"ownerName,omitempty"`
	OwnerPhone        string `json:"ownerPhone,omitempty"`
	MRTStation        string `json:"mrtStation,omitempty"`
	NearbySchool      string `json:"nearbySchool,omitempty"`
	PropertyCondition string `json:"propertyCondition,omitempty"`

	Rooms           string   `json:"rooms,omitempty"`
	HasParking      string   `json:"hasParking,omitempty"`
	ParkingPref     string   `json:"parkingPref,omitempty"`
	FloorPref       string   `json:"floorPref,omitempty"`
	AgePref         string   `json:"agePref,omitempty"`
	PropertyStatus  string   `json:"propertyStatus,omitempty"`
	TargetCommunity string   `json:"targetCommunity,omitempty"`
	DownPayment     int64    `json:"downPayment,omitempty"`
	Features        []string `json:"features,omitempty"`

	Orientation          string `json:"orientation,omitempty"`
	BalconyPref          string `json:"balconyPref,omitempty"`
	MRTDistance          string `json:"mrtDistance,omitempty"`
	BuildingType         string `json:"buildingType,omitempty"`
	TransportConvenience string `json:"transportConvenience,omitempty"`
	NearbyFacilities     string `json:"nearbyFacilities,omitempty"`

	EntrustType   string  `json:"entrustType,omitempty"`
	KeyStatus     string  `json:"keyStatus,omitempty"`
	BuildingAge   float64 `json:"buildingAge,omitempty"`
	TotalSize     float64 `json:"totalSize,omitempty"`
	AddressDetail string  `json:"addressDetail,omitempty"`
}

// Contact statuses.
const (
	StatusProspectBuyer  = "潛在買方"
	StatusViewing        = "帶看中"
	StatusNegotiating    = "議價中"
	StatusSellerSourcing = "開發中 (屋主)"
	StatusListed         = "委託中"
	StatusClosed         = "已結案"
	StatusNotInterested  = "無意願"
)

// Deal is a transaction in the pipeline.
type Deal struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	ContactID     string  `json:"contactId"`
	Value         float64 `json:"value"`
	Stage         string  `json:"stage"`
	Probability   float64 `json:"probability"`
	ExpectedClose string  `json:"expectedClose"`
}

// Deal stages, in pipeline order.
const (
	StageFirstTalk   = "初次洽談"
	StageViewing     = "現場帶看"
	StageNegotiation = "要約議價"
	StageSigned      = "成交簽約"
	StageClosed      = "結案"
)

// Stages lists the deal stages in pipeline order.
func Stages() []string {
	return []string{StageFirstTalk, StageViewing, StageNegotiation, StageSigned, StageClosed}
}

// IsValidStage reports whether stage is one of Stages.
func IsValidStage(stage string) bool {
	for _, s := range Stages() {
		if s == stage {
			return true
		}
	}
	return false
}
