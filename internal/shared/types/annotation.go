package types

// Column describes a single column of a table to annotate.
type Column struct {
	ColumnName string `json:"column_name" binding:"required"`
	DataType   string `json:"data_type" binding:"required"`
}

// Table describes a table together with a few sample rows that give the
// model context for its descriptions.
type Table struct {
	TableName  string           `json:"table_name" binding:"required"`
	Columns    []Column         `json:"columns" binding:"required,dive"`
	SampleRows []map[string]any `json:"sample_rows"`
}

// Relationship describes a foreign-key style reference between two tables.
type Relationship struct {
	FromTable   string   `json:"from_table" binding:"required"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table" binding:"required"`
	ToColumns   []string `json:"to_columns"`
}

// Database groups the tables and relationships of one schema.
type Database struct {
	DatabaseName  string         `json:"database_name" binding:"required"`
	Tables        []Table        `json:"tables" binding:"dive"`
	Relationships []Relationship `json:"relationships" binding:"dive"`
}

// AnnotationRequest asks for generated descriptions over a full schema.
type AnnotationRequest struct {
	DBMSType  string     `json:"dbms_type" binding:"required"`
	Databases []Database `json:"databases" binding:"required,min=1,dive"`
}

// AnnotatedColumn is a Column plus its generated description.
type AnnotatedColumn struct {
	Column
	Description string `json:"description"`
}

// AnnotatedTable is a Table whose columns carry descriptions.
type AnnotatedTable struct {
	TableName   string            `json:"table_name"`
	Description string            `json:"description"`
	Columns     []AnnotatedColumn `json:"columns"`
	SampleRows  []map[string]any  `json:"sample_rows"`
}

// AnnotatedRelationship is a Relationship plus its generated description.
type AnnotatedRelationship struct {
	Relationship
	Description string `json:"description"`
}

// AnnotatedDatabase is a Database with descriptions attached to every
// element.
type AnnotatedDatabase struct {
	DatabaseName  string                  `json:"database_name"`
	Description   string                  `json:"description"`
	Tables        []AnnotatedTable        `json:"tables"`
	Relationships []AnnotatedRelationship `json:"relationships"`
}

// AnnotationResponse mirrors AnnotationRequest with descriptions filled in.
type AnnotationResponse struct {
	DBMSType  string              `json:"dbms_type"`
	Databases []AnnotatedDatabase `json:"databases"`
}
