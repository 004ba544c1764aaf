package backend

import "github.com/qgenie/ai-server/internal/shared/types"

// envelope is the common response wrapper of the management backend.
// Business-level status is carried in Code; "2400" means success for
// query execution endpoints.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const codeQuerySuccess = "2400"

// DatabaseInfo describes one database registered in the backend,
// including the generated schema annotations when present.
type DatabaseInfo struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	DBMSType    string                   `json:"dbms_type"`
	Connection  string                   `json:"connection"`
	Annotations *types.AnnotatedDatabase `json:"annotations,omitempty"`
}

// Summary converts the backend record into the wire summary served to
// chat clients.
func (d DatabaseInfo) Summary() types.DatabaseSummary {
	return types.DatabaseSummary{
		Name:        d.Name,
		Description: d.Description,
		Connection:  d.Connection,
	}
}

type listDatabasesResponse struct {
	envelope
	Databases []DatabaseInfo `json:"databases"`
}

// Schema is the raw structure of one database as the backend reports it.
type Schema struct {
	DatabaseName  string               `json:"database_name"`
	DBMSType      string               `json:"dbms_type"`
	Tables        []types.Table        `json:"tables"`
	Relationships []types.Relationship `json:"relationships"`
}

type getSchemaResponse struct {
	envelope
	Schema Schema `json:"schema"`
}

type executeQueryRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
}

// QueryResult holds the rows returned for an executed query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type executeQueryResponse struct {
	envelope
	Result QueryResult `json:"result"`
}

type apiKey struct {
	ServiceName string `json:"service_name"`
	Key         string `json:"key"`
}

type findKeysResponse struct {
	envelope
	Keys []apiKey `json:"keys"`
}
