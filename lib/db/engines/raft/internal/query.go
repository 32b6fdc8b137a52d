package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry by key.
	QueryTGetMany                    // Retrieve several entries.
	QueryTHas                        // Check if a key exists.
	QueryTScan                       // Collect all entries with a prefix.
	QueryTCount                      // Count the entries with a prefix.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetMany:
		return "GetMany"
	case QueryTHas:
		return "Has"
	case QueryTScan:
		return "Scan"
	case QueryTCount:
		return "Count"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead.
// Queries are executed locally on the state machine and are never serialized.
type Query struct {
	Type QueryType
	Key  []byte   // key or prefix (empty for some queries)
	Keys [][]byte // keys of QueryTGetMany
}

// QueryResult is the result of the Get, GetMany and Scan queries.
// Has and Count return bool and int, GetDBInfo returns db.DatabaseInfo.
type QueryResult struct {
	Ok     bool
	Value  []byte
	Keys   [][]byte
	Values [][]byte
}
