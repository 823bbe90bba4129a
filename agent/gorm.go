package agent

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// GormPlugin returns a GORM plugin with OpenTelemetry instrumentation and
// exception reporting. Use with: db.Use(agent.GormPlugin()).
func (a *Agent) GormPlugin() gorm.Plugin {
	return &gormPlugin{agent: a}
}

type gormPlugin struct {
	agent *Agent
}

func (p *gormPlugin) Name() string { return "aivory_gorm" }

func (p *gormPlugin) Initialize(db *gorm.DB) error {
	db.Callback().Create().Before("gorm:create").Register("aivory:before_create", p.before)
	db.Callback().Create().After("gorm:create").Register("aivory:after_create", p.after("gorm.Create"))

	db.Callback().Query().Before("gorm:query").Register("aivory:before_query", p.before)
	db.Callback().Query().After("gorm:query").Register("aivory:after_query", p.after("gorm.Query"))

	db.Callback().Delete().Before("gorm:delete").Register("aivory:before_delete", p.before)
	db.Callback().Delete().After("gorm:delete").Register("aivory:after_delete", p.after("gorm.Delete"))

	db.Callback().Update().Before("gorm:update").Register("aivory:before_update", p.before)
	db.Callback().Update().After("gorm:update").Register("aivory:after_update", p.after("gorm.Update"))

	db.Callback().Row().Before("gorm:row").Register("aivory:before_row", p.before)
	db.Callback().Row().After("gorm:row").Register("aivory:after_row", p.after("gorm.Row"))

	db.Callback().Raw().Before("gorm:raw").Register("aivory:before_raw", p.before)
	db.Callback().Raw().After("gorm:raw").Register("aivory:after_raw", p.after("gorm.Raw"))

	return nil
}

func (p *gormPlugin) before(db *gorm.DB) {
	ctx, span := p.agent.tracer.Start(db.Statement.Context, "gorm.query")
	span.SetAttributes(attribute.Bool("exception_capture.enabled", true))
	db.Statement.Context = ctx
	db.InstanceSet("aivory:span", span)
}

func (p *gormPlugin) after(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		spanVal, ok := db.InstanceGet("aivory:span")
		if !ok {
			return
		}
		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetName(operation)
		span.SetAttributes(
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.statement", db.Statement.SQL.String()),
		)
		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.table", db.Statement.Table))
		}
		if db.Statement.RowsAffected >= 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		}

		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			span.RecordError(db.Error)
			span.SetAttributes(attribute.String("db.error", db.Error.Error()))
			p.agent.reportSpanError(operation, db.Error)
		}
	}
}

// TraceGormDB adds exception-reporting instrumentation to an existing
// GORM DB instance.
func (a *Agent) TraceGormDB(db *gorm.DB) error {
	return db.Use(a.GormPlugin())
}
