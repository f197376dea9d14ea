package domain

import "time"

// FuelType is the enumerated energy type used across the inventory. The
// labels are the French market values the extraction service returns.
type FuelType string

const (
	FuelPetrol   FuelType = "Essence"
	FuelDiesel   FuelType = "Diesel"
	FuelHybrid   FuelType = "Hybride"
	FuelElectric FuelType = "Électrique"
	FuelUnknown  FuelType = "N/A"
)

// ParseFuelType maps a raw string onto a known fuel type. The second return
// is false for anything outside the enumeration.
func ParseFuelType(s string) (FuelType, bool) {
	switch FuelType(s) {
	case FuelPetrol, FuelDiesel, FuelHybrid, FuelElectric, FuelUnknown:
		return FuelType(s), true
	}
	return FuelUnknown, false
}

// ScanMode selects what kind of document the captured image shows.
type ScanMode string

const (
	ScanModeVIN        ScanMode = "vin"
	ScanModeCarteGrise ScanMode = "carte_grise"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

type Language string

const (
	LangFrench Language = "fr"
	LangArabic Language = "ar"
)

// Permissions is the per-operator capability set. Each flag gates one screen
// or config sub-panel; they are stored per operator, not derived from role.
type Permissions struct {
	Dashboard       bool `json:"dashboard"`
	Scanner         bool `json:"scanner"`
	History         bool `json:"history"`
	Chat            bool `json:"chat"`
	ConfigGlobal    bool `json:"configGlobal"`
	ConfigCompany   bool `json:"configCompany"`
	ConfigLocations bool `json:"configLocations"`
	ConfigUsers     bool `json:"configUsers"`
}

// Capability names used by the permission gate.
const (
	CapDashboard       = "dashboard"
	CapScanner         = "scanner"
	CapHistory         = "history"
	CapChat            = "chat"
	CapConfigGlobal    = "configGlobal"
	CapConfigCompany   = "configCompany"
	CapConfigLocations = "configLocations"
	CapConfigUsers     = "configUsers"
)

// Has reports whether the named capability is granted.
func (p Permissions) Has(capability string) bool {
	switch capability {
	case CapDashboard:
		return p.Dashboard
	case CapScanner:
		return p.Scanner
	case CapHistory:
		return p.History
	case CapChat:
		return p.Chat
	case CapConfigGlobal:
		return p.ConfigGlobal
	case CapConfigCompany:
		return p.ConfigCompany
	case CapConfigLocations:
		return p.ConfigLocations
	case CapConfigUsers:
		return p.ConfigUsers
	}
	return false
}

// DefaultPermissions returns the provisioning profile for a role. The
// profile only seeds the creation form; the stored set stays editable per
// operator afterwards.
func DefaultPermissions(role Role) Permissions {
	if role == RoleAdmin {
		return Permissions{
			Dashboard: true, Scanner: true, History: true, Chat: true,
			ConfigGlobal: true, ConfigCompany: true, ConfigLocations: true, ConfigUsers: true,
		}
	}
	return Permissions{Scanner: true, History: true}
}

// SeedAdminID is the fixed id of the seed administrator. That operator can
// never be deleted.
const SeedAdminID = "1"

// Operator is an application user. Secret holds the base64-encoded password
// (deliberately not hashed; this is a client-local tool).
type Operator struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Secret      string      `json:"-"`
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	Avatar      string      `json:"avatar"`
	Permissions Permissions `json:"permissions"`
}

// Location is a physical site where vehicles are inventoried.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DuplicatePolicy decides what a duplicate hit does at commit time.
type DuplicatePolicy string

const (
	DuplicateWarn  DuplicatePolicy = "warn"
	DuplicateBlock DuplicatePolicy = "block"
)

// Settings is the singleton application configuration editable at runtime.
type Settings struct {
	DuplicateWindowHours int             `json:"duplicateWindowHours"`
	DuplicatePolicy      DuplicatePolicy `json:"duplicatePolicy"`
	MonthlyTarget        int             `json:"monthlyTarget"`
	CompanyName          string          `json:"companyName"`
	AppName              string          `json:"appName"`
	Language             Language        `json:"language"`
}

// DefaultSettings are the values used on first run and whenever the
// persisted row cannot be read.
func DefaultSettings() Settings {
	return Settings{
		DuplicateWindowHours: 24,
		DuplicatePolicy:      DuplicateWarn,
		MonthlyTarget:        100,
		CompanyName:          "AUTO EXPERT MAROC",
		AppName:              "VIN SCAN PRO",
		Language:             LangFrench,
	}
}

// VehicleAnalysis is the extracted vehicle description attached to a scan.
// Every field is best effort; brand and model fall back to a sentinel.
type VehicleAnalysis struct {
	VIN                      string   `json:"vin"`
	Brand                    string   `json:"brand"`
	Model                    string   `json:"model"`
	FuelType                 FuelType `json:"fuelType"`
	Motorization             string   `json:"motorization"`
	YearOfManufacture        string   `json:"yearOfManufacture"`
	RegistrationYear         string   `json:"registrationYear"`
	LicensePlate             string   `json:"licensePlate"`
	InventoryNotes           string   `json:"inventoryNotes"`
	Color                    string   `json:"color"`
	DeductionReasoning       string   `json:"deductionReasoning"`
	MarketValueMin           int64    `json:"marketValueMin"`
	MarketValueMax           int64    `json:"marketValueMax"`
	MarketValueJustification string   `json:"marketValueJustification"`
}

// ScanRecord is one committed inventory entry. The id never changes after
// commit; report and market value are attached in place later.
type ScanRecord struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	OperatorID     string          `json:"operatorId"`
	OperatorName   string          `json:"operatorName"`
	LocationID     string          `json:"locationId"`
	LocationName   string          `json:"locationName"`
	Analysis       VehicleAnalysis `json:"analysis"`
	AnalysisReport string          `json:"analysisReport,omitempty"`
	ScanDurationMS int64           `json:"scanDurationMs,omitempty"`
	PhotoKey       string          `json:"-"`
}

// ChatMessage is one turn of the expert chat.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	ChatRoleUser  = "user"
	ChatRoleModel = "model"
)
