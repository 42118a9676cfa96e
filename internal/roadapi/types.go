// Package roadapi contains the wire types and the HTTP transport for the
// smart-road backend. The transport is a stateless request/response boundary;
// retry and scheduling belong to the reporter.
package roadapi

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TelemetryRequest is the body of POST /api/location. It is built fresh for
// every transmission and carries no shared state.
type TelemetryRequest struct {
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"` // ISO-8601
	Location  LatLng `json:"location"`
}

// Severity grades a collision warning.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RelativeDirection locates a detected object relative to the device heading.
type RelativeDirection string

const (
	DirectionFront      RelativeDirection = "front"
	DirectionFrontLeft  RelativeDirection = "front-left"
	DirectionFrontRight RelativeDirection = "front-right"
	DirectionLeft       RelativeDirection = "left"
	DirectionRight      RelativeDirection = "right"
	DirectionRearLeft   RelativeDirection = "rear-left"
	DirectionRear       RelativeDirection = "rear"
	DirectionRearRight  RelativeDirection = "rear-right"
)

// CollisionWarning is the single most relevant threat at a point in time. It
// has no identity across cycles; each warning supersedes the previous one.
type CollisionWarning struct {
	ObjectType           string            `json:"objectType"` // "vehicle" or "person"
	RelativeDirection    RelativeDirection `json:"relativeDirection"`
	SpeedKPH             float64           `json:"speed_kph"`
	Distance             float64           `json:"distance"` // meters
	TTC                  float64           `json:"ttc"`      // seconds to collision
	CollisionProbability float64           `json:"collisionProbability"`
	Severity             Severity          `json:"severity"`
	Timestamp            string            `json:"timestamp"`
}

// WarningEnvelope wraps the optional warning so that "no warning" is an
// explicit state rather than a missing field.
type WarningEnvelope struct {
	HasWarning bool              `json:"hasWarning"`
	Warning    *CollisionWarning `json:"warning,omitempty"`
}

// ObjectPosition locates a detected object.
type ObjectPosition struct {
	RelativeDirection RelativeDirection `json:"relativeDirection"`
	DistanceM         float64           `json:"distance_m"`
	Coordinates       *LatLng           `json:"coordinates,omitempty"`
}

// ObjectMotion describes a detected object's movement.
type ObjectMotion struct {
	SpeedKPH         float64  `json:"speed_kph"`
	DirectionDegrees *float64 `json:"direction_degrees,omitempty"`
	IsStationary     bool     `json:"is_stationary"`
	IsApproaching    *bool    `json:"is_approaching,omitempty"`
}

// RiskAssessment grades the threat a detected object poses.
type RiskAssessment struct {
	RiskLevel            string   `json:"risk_level"` // none|low|medium|high|critical
	CollisionProbability *float64 `json:"collision_probability,omitempty"`
	TTC                  *float64 `json:"ttc,omitempty"`
}

// ObjectMetadata carries detection provenance.
type ObjectMetadata struct {
	DetectionConfidence float64 `json:"detection_confidence"`
	FirstSeen           string  `json:"first_seen"`
	LastUpdated         string  `json:"last_updated"`
	CameraID            string  `json:"camera_id,omitempty"`
	TrackingID          string  `json:"tracking_id,omitempty"`
}

// DetectedObject is a snapshot of one tracked entity. Each cycle's list is a
// full replacement, not an incremental diff.
type DetectedObject struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"` // vehicle|person|bicycle|unknown
	Subtype        string         `json:"subtype,omitempty"`
	Position       ObjectPosition `json:"position"`
	Motion         ObjectMotion   `json:"motion"`
	RiskAssessment RiskAssessment `json:"risk_assessment"`
	Metadata       ObjectMetadata `json:"metadata"`
}

// MotionEstimate is the server-side estimate of the device's own motion.
type MotionEstimate struct {
	SpeedKPH         float64 `json:"speed_kph"`
	DirectionDegrees float64 `json:"direction_degrees"`
}

// TelemetryResponse is the parsed body of a successful POST /api/location.
// Consumed once per cycle and discarded.
type TelemetryResponse struct {
	Success            bool             `json:"success"`
	Message            string           `json:"message,omitempty"`
	ServerTimestamp    string           `json:"server_timestamp"`
	AssignedID         string           `json:"assigned_id,omitempty"`
	CalculatedMotion   *MotionEstimate  `json:"calculated_motion,omitempty"`
	NearbyVehicles     []DetectedObject `json:"nearby_vehicles,omitempty"`
	NearbyPeople       []DetectedObject `json:"nearby_people,omitempty"`
	CollisionWarning   WarningEnvelope  `json:"collision_warning"`
	AllDetectedObjects []DetectedObject `json:"all_detected_objects,omitempty"`
}

// CoverageArea is a GeoJSON-style polygon. Coordinates are (longitude,
// latitude) pairs; the first ring is the outer boundary. Ordering must be
// preserved exactly as received or the membership test silently breaks.
type CoverageArea struct {
	Type        string        `json:"type"` // "polygon"
	Coordinates [][][]float64 `json:"coordinates"`
}

// CoverageZone is one monitored camera's polygonal coverage region.
type CoverageZone struct {
	ID           string       `json:"cctv_id"`
	Name         string       `json:"name"`
	Location     LatLng       `json:"location"`
	CoverageArea CoverageArea `json:"coverage_area"`
}

// CoverageResponse is the parsed body of GET /api/cctv.
type CoverageResponse struct {
	Success         bool           `json:"success"`
	ServerTimestamp string         `json:"server_timestamp"`
	TotalCount      int            `json:"total_count"`
	Coverage        []CoverageZone `json:"cctv_coverage"`
}

// ErrorDetail is the code/message pair inside an error envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the backend's failure body.
type ErrorEnvelope struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
}
