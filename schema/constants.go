package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of tabular CLI output.
	OutputMode string

	// ArtifactFormat represents the serialization of a unit artifact.
	ArtifactFormat string

	// AlignmentPolicy selects how a clock offset is estimated from matched barcodes.
	AlignmentPolicy string

	// UnitState is the outcome of processing one recording/probe unit.
	UnitState string

	// Polarity is the direction of a digital edge.
	Polarity int8

	// DatabaseBackend represents the database backend for flag and run storage.
	DatabaseBackend string
)

// All output modes supported.
const (
	TextOut OutputMode = "text" // default
	CSVOut  OutputMode = "csv"
	JSONOut OutputMode = "json"
)

// All artifact formats supported.
const (
	MsgpackArtifact ArtifactFormat = "msgpack" // default
	JSONArtifact    ArtifactFormat = "json"
)

// All alignment policies supported.
const (
	FirstMatchPolicy AlignmentPolicy = "first"
	MeanDeltaPolicy  AlignmentPolicy = "mean" // default
)

// All unit states.
const (
	UnitCompleted UnitState = "completed"
	UnitSkipped   UnitState = "skipped"
	UnitFailed    UnitState = "failed"
)

// Edge polarities.
const (
	Falling Polarity = -1
	Rising  Polarity = 1
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// GoodLabel is the sorter quality label of clusters kept for extraction.
const GoodLabel = "good"

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut: {},
	CSVOut:  {},
	JSONOut: {},
}

// ValidArtifactFormats lists all valid artifact formats.
var ValidArtifactFormats = map[ArtifactFormat]struct{}{
	MsgpackArtifact: {},
	JSONArtifact:    {},
}

// ValidAlignmentPolicies lists all valid alignment policies.
var ValidAlignmentPolicies = map[AlignmentPolicy]struct{}{
	FirstMatchPolicy: {},
	MeanDeltaPolicy:  {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// Extension returns the file extension used for the format.
func (f ArtifactFormat) Extension() string {
	if f == JSONArtifact {
		return ".json"
	}
	return ".msgpack"
}

// String implements fmt.Stringer.
func (p Polarity) String() string {
	switch p {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "unknown"
	}
}
