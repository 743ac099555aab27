// Package sqlstore emulates the column-family Store contract on relational
// databases. Tables get a composite primary key (partition columns then
// clustering columns), writes are single-statement upserts, and reads are
// restricted to the key structure and ordered by the clustering columns.
//
// Dialects cover the differences between SQLite, Postgres, MySQL and SQL
// Server: identifier quoting, placeholders, column types, and upsert syntax.
package sqlstore

import (
	"fmt"
	"strings"

	"sessionetl/internal/schema"
)

// Dialect renders backend-specific SQL fragments.
type Dialect interface {
	Name() string
	Quote(ident string) string
	Placeholder(i int) string // 1-based
	ColumnType(t schema.ColumnType, key bool) string
	CreateTable(t schema.Table) string
	DropTable(name string) string
	Upsert(t schema.Table, columns []string) string
}

// SQLite uses ON CONFLICT DO UPDATE (3.24+).
var SQLite Dialect = sqliteDialect{}

// Postgres uses ON CONFLICT DO UPDATE with $n placeholders.
var Postgres Dialect = postgresDialect{}

// MySQL uses ON DUPLICATE KEY UPDATE.
var MySQL Dialect = mysqlDialect{}

// MSSQL uses MERGE with @pN placeholders.
var MSSQL Dialect = mssqlDialect{}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }
func (sqliteDialect) Quote(s string) string { return doubleQuote(s) }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) DropTable(n string) string { return "DROP TABLE IF EXISTS " + doubleQuote(n) }

func (d sqliteDialect) ColumnType(t schema.ColumnType, _ bool) string {
	switch t {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeDouble:
		return "REAL"
	}
	return "TEXT"
}

func (d sqliteDialect) CreateTable(t schema.Table) string {
	return createTable(d, "CREATE TABLE IF NOT EXISTS ", t)
}

func (d sqliteDialect) Upsert(t schema.Table, columns []string) string {
	return onConflictUpsert(d, t, columns)
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }
func (postgresDialect) Quote(s string) string { return doubleQuote(s) }
func (postgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }
func (postgresDialect) DropTable(n string) string { return "DROP TABLE IF EXISTS " + doubleQuote(n) }

func (postgresDialect) ColumnType(t schema.ColumnType, _ bool) string {
	switch t {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeDouble:
		return "DOUBLE PRECISION"
	}
	return "TEXT"
}

func (d postgresDialect) CreateTable(t schema.Table) string {
	return createTable(d, "CREATE TABLE IF NOT EXISTS ", t)
}

func (d postgresDialect) Upsert(t schema.Table, columns []string) string {
	return onConflictUpsert(d, t, columns)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }
func (mysqlDialect) Quote(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (d mysqlDialect) DropTable(n string) string { return "DROP TABLE IF EXISTS " + d.Quote(n) }

// ColumnType uses VARCHAR for text keys: MySQL cannot index unbounded TEXT.
func (mysqlDialect) ColumnType(t schema.ColumnType, key bool) string {
	switch t {
	case schema.TypeInt:
		return "INT"
	case schema.TypeDouble:
		return "DOUBLE"
	}
	if key {
		return "VARCHAR(512)"
	}
	return "TEXT"
}

func (d mysqlDialect) CreateTable(t schema.Table) string {
	return createTable(d, "CREATE TABLE IF NOT EXISTS ", t)
}

func (d mysqlDialect) Upsert(t schema.Table, columns []string) string {
	var b strings.Builder
	values := t.ValueColumns()
	if len(values) == 0 {
		b.WriteString("INSERT IGNORE INTO ")
	} else {
		b.WriteString("INSERT INTO ")
	}
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (")
	b.WriteString(joinQuoted(d, columns))
	b.WriteString(") VALUES (")
	b.WriteString(placeholders(d, len(columns), 1))
	b.WriteString(")")
	if len(values) > 0 {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		for i, c := range values {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s = VALUES(%s)", d.Quote(c), d.Quote(c))
		}
	}
	return b.String()
}

type mssqlDialect struct{}

func (mssqlDialect) Name() string { return "mssql" }
func (mssqlDialect) Quote(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }
func (mssqlDialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (d mssqlDialect) DropTable(n string) string {
	return "DROP TABLE IF EXISTS " + d.Quote(n)
}

// ColumnType uses NVARCHAR(450) for text keys, the widest that fits the
// 900-byte index key limit.
func (mssqlDialect) ColumnType(t schema.ColumnType, key bool) string {
	switch t {
	case schema.TypeInt:
		return "INT"
	case schema.TypeDouble:
		return "FLOAT"
	}
	if key {
		return "NVARCHAR(450)"
	}
	return "NVARCHAR(MAX)"
}

func (d mssqlDialect) CreateTable(t schema.Table) string {
	prefix := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE ", strings.ReplaceAll(t.Name, "'", "''"))
	return createTable(d, prefix, t)
}

func (d mssqlDialect) Upsert(t schema.Table, columns []string) string {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" WITH (HOLDLOCK) AS T USING (SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s AS %s", d.Placeholder(i+1), d.Quote(c))
	}
	b.WriteString(") AS S ON ")
	for i, k := range t.KeyColumns() {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "T.%s = S.%s", d.Quote(k), d.Quote(k))
	}
	if values := t.ValueColumns(); len(values) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range values {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "T.%s = S.%s", d.Quote(c), d.Quote(c))
		}
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(joinQuoted(d, columns))
	b.WriteString(") VALUES (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("S." + d.Quote(c))
	}
	b.WriteString(");")
	return b.String()
}

func createTable(d Dialect, prefix string, t schema.Table) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (\n")
	for _, c := range t.Columns {
		key := t.IsKey(c.Name)
		fmt.Fprintf(&b, "  %s %s", d.Quote(c.Name), d.ColumnType(c.Type, key))
		if key {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	b.WriteString("  PRIMARY KEY (")
	b.WriteString(joinQuoted(d, t.KeyColumns()))
	b.WriteString(")\n)")
	return b.String()
}

func onConflictUpsert(d Dialect, t schema.Table, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(t.Name))
	b.WriteString(" (")
	b.WriteString(joinQuoted(d, columns))
	b.WriteString(") VALUES (")
	b.WriteString(placeholders(d, len(columns), 1))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(joinQuoted(d, t.KeyColumns()))
	b.WriteString(")")
	values := t.ValueColumns()
	if len(values) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	for i, c := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = excluded.%s", d.Quote(c), d.Quote(c))
	}
	return b.String()
}

// Select renders the read statement for p against t, ordered by the
// clustering key.
func Select(d Dialect, t schema.Table, columns []string, p schema.Predicate) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(joinQuoted(d, columns))
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(t.Name))
	if len(p) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range p {
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s = %s", d.Quote(c.Column), d.Placeholder(i+1))
		}
	}
	if len(t.Clustering) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range t.Clustering {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %s", d.Quote(c.Name), c.Order)
		}
	}
	return b.String()
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func joinQuoted(d Dialect, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return strings.Join(out, ", ")
}

func placeholders(d Dialect, n, start int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(start + i)
	}
	return strings.Join(out, ", ")
}
