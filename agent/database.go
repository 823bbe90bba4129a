package agent

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WrapDB wraps a database/sql DB with OpenTelemetry tracing and exception
// reporting.
func (a *Agent) WrapDB(db *sql.DB, dbSystem string) *TracedDB {
	return &TracedDB{db: db, agent: a, dbSystem: dbSystem}
}

// TracedDB is a database/sql.DB wrapper that traces every operation and
// forwards query/exec failures into the interception controller.
type TracedDB struct {
	db       *sql.DB
	agent    *Agent
	dbSystem string
}

func (tdb *TracedDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.query")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.statement", query),
		attribute.String("db.operation", "SELECT"),
	)

	rows, err := tdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tdb.agent.reportSpanError("sql.query", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return rows, nil
}

func (tdb *TracedDB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return tdb.QueryContext(context.Background(), query, args...)
}

func (tdb *TracedDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.query_row")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.statement", query),
		attribute.String("db.operation", "SELECT"),
	)
	return tdb.db.QueryRowContext(ctx, query, args...)
}

func (tdb *TracedDB) QueryRow(query string, args ...interface{}) *sql.Row {
	return tdb.QueryRowContext(context.Background(), query, args...)
}

func (tdb *TracedDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.exec")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.statement", query),
	)

	result, err := tdb.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tdb.agent.reportSpanError("sql.exec", err)
		return nil, err
	}
	if affected, err := result.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", affected))
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (tdb *TracedDB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return tdb.ExecContext(context.Background(), query, args...)
}

func (tdb *TracedDB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.prepare")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.statement", query),
	)

	stmt, err := tdb.db.PrepareContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tdb.agent.reportSpanError("sql.prepare", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return stmt, nil
}

func (tdb *TracedDB) Prepare(query string) (*sql.Stmt, error) {
	return tdb.PrepareContext(context.Background(), query)
}

func (tdb *TracedDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.begin_transaction")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.operation", "BEGIN"),
	)

	tx, err := tdb.db.BeginTx(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tdb.agent.reportSpanError("sql.begin_transaction", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return tx, nil
}

func (tdb *TracedDB) Begin() (*sql.Tx, error) {
	return tdb.BeginTx(context.Background(), nil)
}

func (tdb *TracedDB) PingContext(ctx context.Context) error {
	ctx, span := tdb.agent.tracer.Start(ctx, "sql.ping")
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", tdb.dbSystem),
		attribute.String("db.operation", "PING"),
	)

	err := tdb.db.PingContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		tdb.agent.reportSpanError("sql.ping", err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (tdb *TracedDB) Ping() error {
	return tdb.PingContext(context.Background())
}

func (tdb *TracedDB) Close() error           { return tdb.db.Close() }
func (tdb *TracedDB) DB() *sql.DB            { return tdb.db }
func (tdb *TracedDB) SetMaxOpenConns(n int)  { tdb.db.SetMaxOpenConns(n) }
func (tdb *TracedDB) SetMaxIdleConns(n int)  { tdb.db.SetMaxIdleConns(n) }
func (tdb *TracedDB) Stats() sql.DBStats     { return tdb.db.Stats() }
func (tdb *TracedDB) Driver() driver.Driver  { return tdb.db.Driver() }
