// Package postgres provides a PostgreSQL driver for the golem ODM that
// stores every document as a single JSONB value.
//
// Each collection is a table with one "doc" column; the primary key lives
// inside the document under _id. Collection.Database selects the
// PostgreSQL schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/leandroluk/golem-odm/config"
	"github.com/leandroluk/golem-odm/core"
)

var dialect = goqu.Dialect("postgres")

// PostgresDriver implements core.Driver over JSONB tables.
type PostgresDriver struct {
	pool   *pgxpool.Pool
	schema string
}

var _ core.Driver = (*PostgresDriver)(nil)

// NewPostgresDriver connects to connString and verifies the connection.
func NewPostgresDriver(ctx context.Context, connString string) (*PostgresDriver, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres driver: parse dsn: %w", err)
	}
	return connect(ctx, poolConfig)
}

// NewFromConfig connects using the DSN and timeout of cfg.
func NewFromConfig(ctx context.Context, cfg config.Config) (*PostgresDriver, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres driver: GOLEM_POSTGRES_DSN is empty")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres driver: parse dsn: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return connect(ctx, poolConfig)
}

func connect(ctx context.Context, poolConfig *pgxpool.Config) (*PostgresDriver, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres driver: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres driver: ping: %w", err)
	}
	return &PostgresDriver{pool: pool}, nil
}

// Wrap uses an already configured pool. defaultSchema, when not empty,
// qualifies collections that do not name a database.
func Wrap(pool *pgxpool.Pool, defaultSchema string) *PostgresDriver {
	return &PostgresDriver{pool: pool, schema: defaultSchema}
}

func (driver *PostgresDriver) schemaName(coll core.Collection) string {
	if coll.Database != "" {
		return coll.Database
	}
	return driver.schema
}

func (driver *PostgresDriver) table(coll core.Collection) (exp.IdentifierExpression, error) {
	if coll.Name == "" {
		return nil, errors.New("postgres driver: collection name is empty")
	}
	table := goqu.T(coll.Name)
	if schema := driver.schemaName(coll); schema != "" {
		table = table.Schema(schema)
	}
	return table, nil
}

// EnsureCollection creates the table backing coll together with a unique
// index on _id and a containment index on the document.
func (driver *PostgresDriver) EnsureCollection(ctx context.Context, coll core.Collection) error {
	if coll.Name == "" {
		return errors.New("postgres driver: collection name is empty")
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return err
	}
	statements := []string{}
	tableName := pgx.Identifier{coll.Name}
	if schema := driver.schemaName(coll); schema != "" {
		statements = append(statements, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
		tableName = pgx.Identifier{schema, coll.Name}
	}
	table := tableName.Sanitize()
	statements = append(statements,
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (doc jsonb NOT NULL)", table),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s ((doc->>'_id'))",
			pgx.Identifier{coll.Name + "_id_key"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gin (doc jsonb_path_ops)",
			pgx.Identifier{coll.Name + "_doc_idx"}.Sanitize(), table),
	)
	for _, statement := range statements {
		if _, err := conn.Exec(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

func (driver *PostgresDriver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *PostgresDriver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

func (driver *PostgresDriver) Insert(ctx context.Context, coll core.Collection, documents ...bson.M) ([]any, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	table, err := driver.table(coll)
	if err != nil {
		return nil, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return nil, err
	}
	idList := make([]any, 0, len(documents))
	encodedList := make([]string, 0, len(documents))
	for _, doc := range documents {
		stored := encodeDocument(doc)
		if stored[core.DefaultPrimaryKey] == nil {
			stored[core.DefaultPrimaryKey] = uuid.NewString()
		}
		encoded, err := marshal(stored)
		if err != nil {
			return nil, fmt.Errorf("postgres driver: encode document: %w", err)
		}
		idList = append(idList, stored[core.DefaultPrimaryKey])
		encodedList = append(encodedList, encoded)
	}
	sqlQuery, args, err := insertSQL(table, encodedList)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, sqlQuery, args...); err != nil {
		return nil, err
	}
	return idList, nil
}

func (driver *PostgresDriver) FindOne(ctx context.Context, coll core.Collection, options *core.FindOptions) (bson.M, error) {
	single := core.FindOptions{Limit: 1}
	if options != nil {
		single = *options
		single.Limit = 1
	}
	docs, err := driver.find(ctx, coll, &single)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (driver *PostgresDriver) Find(ctx context.Context, coll core.Collection, options *core.FindOptions) (core.Cursor, error) {
	docs, err := driver.find(ctx, coll, options)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(docs), nil
}

func (driver *PostgresDriver) find(ctx context.Context, coll core.Collection, options *core.FindOptions) ([]bson.M, error) {
	table, err := driver.table(coll)
	if err != nil {
		return nil, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return nil, err
	}
	sqlQuery, args, err := selectSQL(table, options)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	var projection []string
	if options != nil {
		projection = options.Projection
	}
	return scanDocuments(rows, projection)
}

func scanDocuments(rows pgx.Rows, projection []string) ([]bson.M, error) {
	defer rows.Close()
	docs := []bson.M{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, fmt.Errorf("postgres driver: decode document: %w", err)
		}
		docs = append(docs, core.ProjectDocument(doc, projection))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (driver *PostgresDriver) Count(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	table, err := driver.table(coll)
	if err != nil {
		return 0, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return 0, err
	}
	sqlQuery, args, err := countSQL(table, filter)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := conn.QueryRow(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (driver *PostgresDriver) Distinct(ctx context.Context, coll core.Collection, field string, filter bson.M) ([]any, error) {
	table, err := driver.table(coll)
	if err != nil {
		return nil, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return nil, err
	}
	sqlQuery, args, err := distinctSQL(table, field, filter)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := []any{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		value, err := decodeScalar(data)
		if err != nil {
			return nil, fmt.Errorf("postgres driver: decode value: %w", err)
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

// Aggregate pushes leading $match stages into SQL and evaluates the
// remaining stages in process.
func (driver *PostgresDriver) Aggregate(ctx context.Context, coll core.Collection, pipeline []bson.M) (core.Cursor, error) {
	var matches []any
	rest := pipeline
	for len(rest) > 0 {
		filter, ok := rest[0]["$match"]
		if !ok || len(rest[0]) != 1 {
			break
		}
		matches = append(matches, filter)
		rest = rest[1:]
	}
	options := &core.FindOptions{}
	if len(matches) > 0 {
		options.Filter = bson.M{"$and": matches}
	}
	docs, err := driver.find(ctx, coll, options)
	if err != nil {
		return nil, err
	}
	docs, err = core.EvaluatePipeline(docs, rest)
	if err != nil {
		return nil, err
	}
	return core.NewSliceCursor(docs), nil
}

func (driver *PostgresDriver) UpdateMany(ctx context.Context, coll core.Collection, filter bson.M, update bson.M) (int64, error) {
	table, err := driver.table(coll)
	if err != nil {
		return 0, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return 0, err
	}
	sqlQuery, args, err := updateSQL(table, filter, update)
	if err != nil {
		return 0, err
	}
	tag, err := conn.Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (driver *PostgresDriver) DeleteMany(ctx context.Context, coll core.Collection, filter bson.M) (int64, error) {
	table, err := driver.table(coll)
	if err != nil {
		return 0, err
	}
	conn, err := driver.conn(ctx)
	if err != nil {
		return 0, err
	}
	sqlQuery, args, err := deleteSQL(table, filter)
	if err != nil {
		return 0, err
	}
	tag, err := conn.Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func selectSQL(table exp.IdentifierExpression, options *core.FindOptions) (string, []any, error) {
	if options == nil {
		options = &core.FindOptions{}
	}
	where, err := whereExpression(options.Filter)
	if err != nil {
		return "", nil, err
	}
	selectStmt := dialect.From(table).Select(goqu.C(docColumn)).Where(where)
	for _, sortItem := range options.Sort {
		value := goqu.L("doc #> ?::text::text[]", textArray(sortItem.Field))
		if sortItem.Order < 0 {
			selectStmt = selectStmt.OrderAppend(value.Desc().NullsLast())
		} else {
			selectStmt = selectStmt.OrderAppend(value.Asc().NullsFirst())
		}
	}
	if options.Limit > 0 {
		selectStmt = selectStmt.Limit(uint(options.Limit))
	}
	if options.Skip > 0 {
		selectStmt = selectStmt.Offset(uint(options.Skip))
	}
	return selectStmt.Prepared(true).ToSQL()
}

func countSQL(table exp.IdentifierExpression, filter bson.M) (string, []any, error) {
	where, err := whereExpression(filter)
	if err != nil {
		return "", nil, err
	}
	return dialect.From(table).Select(goqu.COUNT(goqu.Star())).Where(where).Prepared(true).ToSQL()
}

func distinctSQL(table exp.IdentifierExpression, field string, filter bson.M) (string, []any, error) {
	where, err := whereExpression(filter)
	if err != nil {
		return "", nil, err
	}
	path := textArray(field)
	return dialect.From(table).
		SelectDistinct(goqu.L("doc #> ?::text::text[]", path)).
		Where(where, goqu.L("doc #> ?::text::text[] IS NOT NULL", path)).
		Prepared(true).
		ToSQL()
}

func insertSQL(table exp.IdentifierExpression, documents []string) (string, []any, error) {
	rows := make([][]any, 0, len(documents))
	for _, doc := range documents {
		rows = append(rows, goqu.Vals{goqu.L("?::jsonb", doc)})
	}
	return dialect.Insert(table).Cols(docColumn).Vals(rows...).Prepared(true).ToSQL()
}

func updateSQL(table exp.IdentifierExpression, filter bson.M, update bson.M) (string, []any, error) {
	where, err := whereExpression(filter)
	if err != nil {
		return "", nil, err
	}
	value, err := updateExpression(update)
	if err != nil {
		return "", nil, err
	}
	return dialect.Update(table).
		Set(goqu.Record{docColumn: value}).
		Where(where).
		Prepared(true).
		ToSQL()
}

func deleteSQL(table exp.IdentifierExpression, filter bson.M) (string, []any, error) {
	where, err := whereExpression(filter)
	if err != nil {
		return "", nil, err
	}
	return dialect.Delete(table).Where(where).Prepared(true).ToSQL()
}

// updateExpression renders $set and $unset as JSONB edits of the document
// column. Top-level keys are merged in one step, dotted keys use jsonb_set.
func updateExpression(update bson.M) (exp.Expression, error) {
	var value exp.Expression = goqu.I(docColumn)
	merge := map[string]any{}
	var nested []string
	var removed []string
	for _, op := range sortedKeys(update) {
		fields, ok := asDocument(update[op])
		if !ok {
			return nil, fmt.Errorf("postgres driver: %s expects a document", op)
		}
		switch op {
		case "$set":
			for _, key := range sortedKeys(fields) {
				if strings.Contains(key, ".") {
					nested = append(nested, key)
					continue
				}
				merge[key] = encodeValue(fields[key])
			}
		case "$unset":
			removed = append(removed, sortedKeys(fields)...)
		default:
			return nil, fmt.Errorf("postgres driver: unsupported update operator %s", op)
		}
	}
	if len(merge) == 0 && len(nested) == 0 && len(removed) == 0 {
		return nil, errors.New("postgres driver: update document is empty")
	}
	if len(merge) > 0 {
		encoded, err := marshal(merge)
		if err != nil {
			return nil, err
		}
		value = goqu.L("? || ?::jsonb", value, encoded)
	}
	set, _ := asDocument(update["$set"])
	for _, key := range nested {
		encoded, err := marshal(encodeValue(set[key]))
		if err != nil {
			return nil, err
		}
		value = goqu.L("jsonb_set(?, ?::text::text[], ?::jsonb, true)", value, textArray(key), encoded)
	}
	for _, key := range removed {
		value = goqu.L("? #- ?::text::text[]", value, textArray(key))
	}
	return value, nil
}
